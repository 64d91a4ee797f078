package api

import (
	"net/http"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/signing"
)

// handleSweep runs one sweep for an external scheduler that holds a signed
// trigger URL.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.signer.Validate(signing.ActionSweep, q.Get("expires"), q.Get("signature"), time.Now()); err != nil {
		s.log.Warnw("sweep trigger rejected", "request_id", requestID(r.Context()), "error", err)
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired signature")
		return
	}
	res, err := s.sweeper.Run(r.Context())
	if err != nil {
		s.fail(w, r, err, "Sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}
