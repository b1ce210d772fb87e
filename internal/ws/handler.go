// Package ws bridges websocket peers into relay rooms.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/hub"
	"github.com/DoyleJ11/foundry-planner/internal/lobby"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	pingEvery    = 30 * time.Second
	maxFrame     = 4 << 20
)

type Options struct {
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*".
	OriginPatterns []string
	Log            *zap.Logger
	// OnPeer is told +1 on join and -1 on leave.
	OnPeer func(role lobby.Role, delta int)
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		role, ok := lobby.ParseRole(r.URL.Query().Get("role"))
		if !ok {
			http.Error(w, "role must be editor or preview", http.StatusBadRequest)
			return
		}

		lb := h.Lookup(code)
		if lb == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxFrame)

		out := make(chan []byte, 8)
		peerID := uuid.NewString()
		plog := log.With(zap.String("session", code), zap.String("peer", peerID), zap.String("role", string(role)))

		if !send(lb, lobby.Join{PeerID: peerID, Role: role, Outbox: out}) {
			return
		}
		if opts.OnPeer != nil {
			opts.OnPeer(role, 1)
			defer opts.OnPeer(role, -1)
		}
		defer send(lb, lobby.Leave{PeerID: peerID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-writeCtx.Done():
					return
				case frame, ok := <-out:
					if !ok {
						// dropped by the room or room closed
						conn.Close(websocket.StatusGoingAway, "dropped")
						return
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Write(ctx, websocket.MessageText, frame)
					cancel()
					if err != nil {
						plog.Debug("write failed", zap.Error(err))
					}
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						plog.Debug("heartbeat failed", zap.Error(err))
						conn.Close(websocket.StatusGoingAway, "heartbeat")
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					plog.Debug("read ended", zap.Error(err))
				}
				return
			}

			if !known(data) {
				writeError(r.Context(), conn, "unknown type")
				continue
			}
			if !send(lb, lobby.Relay{PeerID: peerID, Data: data}) {
				return
			}
		}
	}
}

// send delivers m unless the room has already shut down.
func send(lb *lobby.Lobby, m lobby.Msg) bool {
	select {
	case lb.Inbox() <- m:
		return true
	case <-lb.Done():
		return false
	}
}

func known(data []byte) bool {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	switch env.Type {
	case types.TypeReady, types.TypeUpdate, types.TypePing, types.TypePong:
		return true
	}
	return false
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.Envelope{Type: types.TypeError, Error: msg})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
