package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type checkResponse struct {
	Exists           bool   `json:"exists"`
	PasswordRequired bool   `json:"passwordRequired"`
	ExpiresAt        string `json:"expiresAt,omitempty"`
	ViewsRemaining   int    `json:"viewsRemaining"`
	Error            string `json:"error,omitempty"`
	Code             string `json:"code,omitempty"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "shareId")
	if r.URL.Query().Get("check") == "true" {
		s.checkShare(w, r, id)
		return
	}
	s.fetchShare(w, r, id)
}

func (s *Server) checkShare(w http.ResponseWriter, r *http.Request, id string) {
	st, err := s.shares.Check(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "Download failed")
		return
	}
	if !st.Exists {
		respondJSON(w, http.StatusNotFound, checkResponse{
			Error: "Share not found or expired",
			Code:  codeNotFound,
		})
		return
	}
	respondJSON(w, http.StatusOK, checkResponse{
		Exists:           true,
		PasswordRequired: st.PasswordRequired,
		ExpiresAt:        formatTime(st.ExpiresAt),
		ViewsRemaining:   st.ViewsRemaining,
	})
}

func (s *Server) fetchShare(w http.ResponseWriter, r *http.Request, id string) {
	pass := r.Header.Get("X-Share-Password")
	if pass == "" {
		pass = r.URL.Query().Get("password")
	}
	d, err := s.shares.Fetch(r.Context(), id, pass)
	if err != nil {
		s.fail(w, r, err, "Download failed")
		return
	}
	defer d.Close()

	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Encrypted-Metadata", d.EncryptedMetadata)
	h.Set("X-Original-Content-Type", contentType)
	h.Set("X-Is-Last-View", strconv.FormatBool(d.Final))
	if d.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d); err != nil {
		// The view is already counted.
		s.log.Warnw("stream share", "share_id", d.ShareID, "request_id", requestID(r.Context()), "error", err)
	}
}
