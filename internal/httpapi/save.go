package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

const maxSaveBody = 8 << 20

// SaveDocument replaces the stored document with the request payload.
func SaveDocument(b store.Backend, auth Authenticator, m *Metrics, log *zap.Logger) http.HandlerFunc {
	fail := func(w http.ResponseWriter, status int, code, message string) {
		m.Writes.WithLabelValues(code).Inc()
		writeFailure(w, status, code, message)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			fail(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are accepted")
			return
		}
		if !isJSON(r.Header.Get("Content-Type")) {
			fail(w, http.StatusUnsupportedMediaType, "invalid_content_type", "Content-Type must be application/json")
			return
		}
		if !auth.Check(r) {
			fail(w, http.StatusUnauthorized, "not_authenticated", "Admin authentication required")
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSaveBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large")
				return
			}
			fail(w, http.StatusBadRequest, "empty_body", "Request body is empty")
			return
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			fail(w, http.StatusBadRequest, "empty_body", "Request body is empty")
			return
		}

		var req types.SaveRequest
		if err := json.Unmarshal(raw, &req); err != nil || len(req.Payload) == 0 || string(req.Payload) == "null" {
			fail(w, http.StatusBadRequest, "invalid_json", "Invalid JSON or missing payload field")
			return
		}
		if err := board.CheckPayload(req.Payload); err != nil {
			var ve *board.ValidationError
			if errors.As(err, &ve) {
				fail(w, http.StatusBadRequest, ve.Code, ve.Message)
				return
			}
			fail(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		doc, err := board.Parse(req.Payload)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid_json", "Invalid JSON or missing payload field")
			return
		}

		snap, err := b.Save(r.Context(), doc)
		if err != nil {
			status, code := statusFor(err)
			log.Warn("save rejected", zap.String("code", code), zap.Error(err))
			fail(w, status, code, messageOf(err))
			return
		}

		m.Writes.WithLabelValues("ok").Inc()
		m.Version.Set(float64(snap.Version))
		log.Info("document saved", zap.Int("version", snap.Version), zap.Int("bytes", len(snap.Body)))
		writeJSON(w, http.StatusOK, types.SaveResponse{OK: true, Message: "Data saved successfully", Version: snap.Version})
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mt == "application/json"
}

func statusFor(err error) (int, string) {
	code := store.CodeOf(err)
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, orDefault(code, "invalid_document")
	case errors.Is(err, store.ErrConcurrentWrite):
		return http.StatusServiceUnavailable, orDefault(code, "lock_failed")
	default:
		return http.StatusInternalServerError, orDefault(code, "write_failed")
	}
}

func messageOf(err error) string {
	var we *store.WriteError
	if errors.As(err, &we) && we.Message != "" {
		return we.Message
	}
	return "Failed to write data to file"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
