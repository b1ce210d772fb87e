package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/channel"
	"github.com/DoyleJ11/foundry-planner/internal/engine"
	"github.com/DoyleJ11/foundry-planner/internal/importer"
	"github.com/DoyleJ11/foundry-planner/internal/savequeue"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

var ErrNoPreview = errors.New("no preview attached")

const pushTimeout = 3 * time.Second

// Editor is the editing view: it applies commands, saves through the queue
// and pushes every persisted document to an attached preview.
type Editor struct {
	model    engine.Model
	queue    *savequeue.Queue
	autosave bool
	log      *zap.Logger
	cfg      Config

	mu   sync.Mutex
	doc  *board.Document
	sess Session
	peer *channel.Dispatcher
}

type EditorOption func(*Editor)

func WithAutosave(on bool) EditorOption { return func(e *Editor) { e.autosave = on } }

func WithPrunePolicy(p engine.PrunePolicy) EditorOption {
	return func(e *Editor) { e.model.Prune = p }
}

func WithEditorLogger(l *zap.Logger) EditorOption { return func(e *Editor) { e.log = l } }

func WithEditorConfig(c Config) EditorOption { return func(e *Editor) { e.cfg = c } }

// NewEditor starts from a loaded document. The save queue is primed with it,
// so saving it unchanged is a no-op.
func NewEditor(doc *board.Document, sess Session, w store.Writer, qopts []savequeue.Option, opts ...EditorOption) (*Editor, error) {
	if doc == nil {
		doc = board.Empty()
	}
	e := &Editor{doc: doc, log: zap.NewNop(), cfg: DefaultConfig()}
	for _, o := range opts {
		o(e)
	}
	e.sess = sess.Normalized(doc)
	qopts = append(qopts, savequeue.WithPersisted(e.persisted), savequeue.WithLogger(e.log))
	e.queue = savequeue.New(w, qopts...)
	if err := e.queue.Prime(doc); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Editor) Document() *board.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

func (e *Editor) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Editor) SetSession(s Session) {
	e.mu.Lock()
	e.sess = s.Normalized(e.doc)
	e.mu.Unlock()
}

func (e *Editor) Scene() Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Build(e.doc, e.sess, e.cfg)
}

// Apply runs one command against the current document. With autosave on, a
// command that changed something is saved straight away.
func (e *Editor) Apply(ctx context.Context, cmd engine.Command) ([]engine.Event, error) {
	e.mu.Lock()
	events, next, err := e.model.Apply(e.doc, cmd)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.doc = next
	e.mu.Unlock()

	if e.autosave && len(events) > 0 {
		if _, err := e.Save(ctx); err != nil {
			return events, err
		}
	}
	return events, nil
}

// Assign puts player on building in the session's legion and stage.
func (e *Editor) Assign(ctx context.Context, player, building string) ([]engine.Event, error) {
	s := e.Session()
	return e.Apply(ctx, engine.Command{Type: engine.CmdAssign, LegionID: s.LegionID, Stage: s.Stage, BuildingID: building, Player: player})
}

func (e *Editor) Unassign(ctx context.Context, player, building string) ([]engine.Event, error) {
	s := e.Session()
	return e.Apply(ctx, engine.Command{Type: engine.CmdUnassign, LegionID: s.LegionID, Stage: s.Stage, BuildingID: building, Player: player})
}

// Import merges rows and reports how many player/assignment pairs were new.
func (e *Editor) Import(ctx context.Context, rows []importer.Row) (int, error) {
	e.mu.Lock()
	res, err := importer.Merge(e.doc, rows)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	e.doc = res.Doc
	e.mu.Unlock()

	if e.autosave && res.Added > 0 {
		if _, err := e.Save(ctx); err != nil {
			return res.Added, err
		}
	}
	return res.Added, nil
}

// Save persists the current document through the diff-guarded queue.
func (e *Editor) Save(ctx context.Context) (savequeue.Result, error) {
	res, err := e.queue.Save(ctx, e.Document())
	if err != nil {
		return res, err
	}
	if res.Skipped {
		e.log.Debug("save skipped", zap.Int("version", res.Version))
	}
	return res, nil
}

func (e *Editor) LastVersion() int { return e.queue.LastVersion() }

// Attach serves a preview over conn until ctx is done or conn closes.
// A ready from the preview is answered with the current document.
func (e *Editor) Attach(ctx context.Context, conn channel.Conn) error {
	d := e.bind(conn)
	defer e.unbind(d)
	return d.Run(ctx)
}

// Start is Attach in the background. conn is bound before Start returns, so
// a save made right after is already pushed over it. The channel yields
// Attach's result.
func (e *Editor) Start(ctx context.Context, conn channel.Conn) <-chan error {
	d := e.bind(conn)
	done := make(chan error, 1)
	go func() {
		err := d.Run(ctx)
		e.unbind(d)
		done <- err
	}()
	return done
}

func (e *Editor) bind(conn channel.Conn) *channel.Dispatcher {
	d := channel.NewDispatcher(conn, channel.Handlers{
		OnReady: func(ctx context.Context) error {
			return conn.Send(ctx, channel.Update{Doc: e.current()})
		},
	}, e.log)
	e.mu.Lock()
	e.peer = d
	e.mu.Unlock()
	return d
}

func (e *Editor) unbind(d *channel.Dispatcher) {
	e.mu.Lock()
	if e.peer == d {
		e.peer = nil
	}
	e.mu.Unlock()
}

// Probe checks the attached preview answers within channel.ProbeTimeout.
func (e *Editor) Probe(ctx context.Context) error {
	e.mu.Lock()
	d := e.peer
	e.mu.Unlock()
	if d == nil {
		return ErrNoPreview
	}
	return d.Probe(ctx, channel.ProbeTimeout)
}

// current is the document as a preview should see it, carrying the last
// acknowledged version.
func (e *Editor) current() *board.Document {
	e.mu.Lock()
	doc := e.doc.Clone()
	e.mu.Unlock()
	doc.Meta.Version = max(doc.Meta.Version, e.queue.LastVersion())
	return doc
}

func (e *Editor) persisted(doc *board.Document, ack store.WriteAck) {
	e.mu.Lock()
	d := e.peer
	e.mu.Unlock()
	if d == nil {
		return
	}
	// match the stored form so the preview's next poll finds nothing new
	doc = doc.Clone()
	board.Normalize(doc)
	board.RoundCoords(doc)
	doc.Meta.Version = ack.Version
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := d.Conn().Send(ctx, channel.Update{Doc: doc}); err != nil {
		e.log.Warn("push to preview failed", zap.Error(err))
	}
}
