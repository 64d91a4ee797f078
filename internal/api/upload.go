package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/TobyX424242/ZeroShare/internal/share"
	"github.com/TobyX424242/ZeroShare/internal/shares"
)

var errTooLarge = errors.New("upload exceeds size limit")

type uploadPayload struct {
	EncryptedData     string          `json:"encryptedData"`
	EncryptedMetadata string          `json:"encryptedMetadata"`
	ContentType       string          `json:"contentType"`
	AccessControl     json.RawMessage `json:"accessControl"`
}

type uploadResponse struct {
	Success   bool   `json:"success"`
	ShareID   string `json:"shareId"`
	ExpiresAt string `json:"expiresAt"`
}

// handleUpload accepts either a JSON document carrying base64 ciphertext or
// a raw ciphertext body with the metadata and access control in headers.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var (
		req     shares.UploadRequest
		cleanup func()
		err     error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		req, err = s.readJSONUpload(w, r)
	} else {
		req, cleanup, err = s.readRawUpload(w, r)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if errors.Is(err, errTooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
			fmt.Sprintf("File exceeds limit (%d bytes)", s.cfg.MaxFileSize))
		return
	}
	if err != nil {
		s.fail(w, r, err, "Upload failed")
		return
	}

	res, err := s.shares.Upload(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, "Upload failed")
		return
	}
	respondJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		ShareID:   res.ShareID,
		ExpiresAt: formatTime(res.ExpiresAt),
	})
}

func (s *Server) readJSONUpload(w http.ResponseWriter, r *http.Request) (shares.UploadRequest, error) {
	// base64 inflates the payload by a third; leave room for the envelope.
	limit := s.cfg.MaxFileSize/3*4 + 4 + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var payload uploadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return shares.UploadRequest{}, errTooLarge
		}
		return shares.UploadRequest{}, &share.ValidationError{Message: "Invalid JSON body"}
	}
	if payload.EncryptedData == "" || payload.EncryptedMetadata == "" {
		return shares.UploadRequest{}, &share.ValidationError{Message: "Missing required fields"}
	}
	data, err := base64.StdEncoding.DecodeString(payload.EncryptedData)
	if err != nil {
		return shares.UploadRequest{}, &share.ValidationError{Field: "encryptedData", Message: "encryptedData must be base64"}
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return shares.UploadRequest{}, errTooLarge
	}
	access, err := share.ParseAccessRequest(payload.AccessControl)
	if err != nil {
		return shares.UploadRequest{}, err
	}
	return shares.UploadRequest{
		Body:              bytes.NewReader(data),
		Size:              int64(len(data)),
		ContentType:       payload.ContentType,
		EncryptedMetadata: payload.EncryptedMetadata,
		Access:            access,
	}, nil
}

func (s *Server) readRawUpload(w http.ResponseWriter, r *http.Request) (shares.UploadRequest, func(), error) {
	metadata := r.Header.Get("X-Encrypted-Metadata")
	accessHeader := r.Header.Get("X-Access-Control")
	if metadata == "" || accessHeader == "" {
		return shares.UploadRequest{}, nil, &share.ValidationError{Message: "Missing required headers"}
	}
	rawAccess, err := base64.StdEncoding.DecodeString(accessHeader)
	if err != nil {
		return shares.UploadRequest{}, nil, &share.ValidationError{Field: "accessControl", Message: "Invalid Access Control Header"}
	}
	access, err := share.ParseAccessRequest(rawAccess)
	if err != nil {
		return shares.UploadRequest{}, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize)
	tmp, err := persistTemp(r.Body)
	if err != nil {
		return shares.UploadRequest{}, nil, err
	}
	cleanup := func() {
		if err := tmp.Close(); err != nil {
			s.log.Warnw("remove upload spool", "path", tmp.path, "error", err)
		}
	}
	if tmp.size == 0 {
		cleanup()
		return shares.UploadRequest{}, nil, &share.ValidationError{Message: "Missing required fields"}
	}
	return shares.UploadRequest{
		Body:              tmp.f,
		Size:              tmp.size,
		ContentType:       r.Header.Get("X-Original-Content-Type"),
		EncryptedMetadata: metadata,
		Access:            access,
	}, cleanup, nil
}

// tempUpload is a request body spooled to disk so its exact size is known
// before the blob store sees it.
type tempUpload struct {
	f    *os.File
	path string
	size int64
}

func persistTemp(body io.Reader) (*tempUpload, error) {
	f, err := os.CreateTemp("", "zeroshare-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmp := &tempUpload{f: f, path: f.Name()}
	written, err := io.Copy(f, body)
	if err != nil {
		_ = tmp.Close()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	tmp.size = written
	return tmp, nil
}

func (t *tempUpload) Close() error {
	return errors.Join(t.f.Close(), os.Remove(t.path))
}
