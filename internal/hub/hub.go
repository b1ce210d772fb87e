// Package hub owns every relay room, keyed by session code.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Lookup is a blocking GetLobby. It returns nil for unknown codes.
func (h *Hub) Lookup(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- GetLobby{Code: code, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	return h.await(reply)
}

// Ensure is a blocking EnsureLobby.
func (h *Hub) Ensure(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- EnsureLobby{Code: code, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	return h.await(reply)
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			// lobbies share our context and stop on their own
			clear(h.lobbies)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby, EnsureLobby:
				code, reply := lobbyArgs(msg)
				if lb := h.lobbies[code]; lb != nil {
					reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, h.log.With(zap.String("session", code)))
				h.lobbies[code] = lb
				reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					stop(lb)
					delete(h.lobbies, msg.Code)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) await(reply chan *lobby.Lobby) *lobby.Lobby {
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

func lobbyArgs(m HubMsg) (string, chan *lobby.Lobby) {
	switch msg := m.(type) {
	case CreateLobby:
		return msg.Code, msg.Reply
	case EnsureLobby:
		return msg.Code, msg.Reply
	}
	return "", nil
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		stop(lb)
	}
	clear(h.lobbies)
	h.cancel()
}

// stop asks lb to shut down. A lobby that already stopped no longer reads
// its inbox, so the send gives way to Done.
func stop(lb *lobby.Lobby) {
	select {
	case lb.Inbox() <- lobby.Shutdown{}:
	case <-lb.Done():
	}
}
