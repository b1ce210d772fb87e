package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/hub"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateSession opens a relay room an editor and its previews can join.
func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if h.Lookup(c) == nil {
				code = c
				break
			}
			log.Debug("collision on session code, regenerating")
		}

		if h.Ensure(code) == nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, types.SessionResponse{Code: code})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.SaveResponse{OK: false, Error: code, Message: message})
}
