// Package lobby runs one relay room: a single actor loop pairing editors
// with previews of the same plan.
package lobby

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

type Role string

const (
	RoleEditor  Role = "editor"
	RolePreview Role = "preview"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleEditor, RolePreview:
		return Role(s), true
	}
	return "", false
}

// opposite is who receives frames sent by r.
func (r Role) opposite() Role {
	if r == RoleEditor {
		return RolePreview
	}
	return RoleEditor
}

type Msg interface{ isLobbyMsg() }

// Relay forwards one raw frame from a peer to every peer of the other role.
type Relay struct {
	PeerID string
	Data   []byte
}

func (Relay) isLobbyMsg() {}

type Join struct {
	PeerID string
	Role   Role
	Outbox chan []byte // frames for this peer
}

func (Join) isLobbyMsg() {}

type Leave struct{ PeerID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Editors  int
	Previews int
	Updates  int // update frames relayed from editors
	HasLast  bool
}

type peer struct {
	role Role
	out  chan []byte
}

type Lobby struct {
	inbox   chan Msg
	peers   map[string]peer
	last    []byte // most recent update frame from an editor
	updates int
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		inbox:  make(chan Msg, 64),
		peers:  make(map[string]peer),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.peers[msg.PeerID] = peer{role: msg.Role, out: msg.Outbox}
				l.log.Debug("peer joined", zap.String("peer", msg.PeerID), zap.String("role", string(msg.Role)))
				// a late preview sees the editor's latest document straight away
				if msg.Role == RolePreview && l.last != nil {
					l.send(msg.PeerID, l.last)
				}

			case Leave:
				delete(l.peers, msg.PeerID)
				l.log.Debug("peer left", zap.String("peer", msg.PeerID))

			case Relay:
				from, ok := l.peers[msg.PeerID]
				if !ok {
					break
				}
				kind := frameType(msg.Data)
				if from.role == RoleEditor && kind == types.TypeUpdate {
					l.last = msg.Data
					l.updates++
				}
				if from.role == RolePreview && kind == types.TypeReady && !l.has(RoleEditor) && l.last != nil {
					// no editor to answer, replay what we have
					l.send(msg.PeerID, l.last)
					break
				}
				l.broadcast(from.role.opposite(), msg.Data)

			case GetState:
				msg.Reply <- View{
					Editors:  l.count(RoleEditor),
					Previews: l.count(RolePreview),
					Updates:  l.updates,
					HasLast:  l.last != nil,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, p := range l.peers {
		close(p.out)
		delete(l.peers, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(to Role, data []byte) {
	for id, p := range l.peers {
		if p.role == to {
			l.send(id, data)
		}
	}
}

// send drops a peer whose outbox is full.
func (l *Lobby) send(id string, data []byte) {
	p := l.peers[id]
	select {
	case p.out <- data:
	default:
		l.log.Warn("dropping slow peer", zap.String("peer", id), zap.String("role", string(p.role)))
		close(p.out)
		delete(l.peers, id)
	}
}

func (l *Lobby) has(r Role) bool { return l.count(r) > 0 }

func (l *Lobby) count(r Role) int {
	n := 0
	for _, p := range l.peers {
		if p.role == r {
			n++
		}
	}
	return n
}

func frameType(data []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &env)
	return env.Type
}

// Done is closed once the room has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Inbox lets the websocket layer and tests talk to the room.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
