package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

// scriptedReader replays a list of responses, repeating the last one.
type scriptedReader struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	tokens   []store.Token
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	block    chan struct{}
}

type step struct {
	res   store.ReadResult
	err   error
	stall bool
}

func (s *scriptedReader) Read(ctx context.Context, tok store.Token) (store.ReadResult, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if cur > s.maxSeen.Load() {
		s.maxSeen.Store(cur)
	}
	s.mu.Lock()
	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	s.tokens = append(s.tokens, tok)
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return store.ReadResult{}, ctx.Err()
		}
	}
	if st.stall {
		<-ctx.Done()
		return store.ReadResult{}, ctx.Err()
	}
	return st.res, st.err
}

func body(s string) step {
	return step{res: store.ReadResult{Body: []byte(s), Token: store.Token{ETag: `"` + s[:min(len(s), 8)] + `"`}}}
}

var notModified = step{res: store.ReadResult{Unchanged: true}}

const docA = `{"buildings":[],"legion_data":[{"legion_id":"L1","all_players":["Ana"],"stages":[]}]}`
const docB = `{"buildings":[],"legion_data":[{"legion_id":"L1","all_players":["Ana","Bo"],"stages":[]}]}`

func newPoller(r store.Reader, onChange ChangeFunc, opts ...Option) *Poller {
	cfg := DefaultConfig()
	cfg.Interval = time.Second
	cfg.Timeout = 20 * time.Millisecond
	return New(r, cfg, onChange, opts...)
}

func TestPoll_UnchangedKeepsBaseDelay(t *testing.T) {
	r := &scriptedReader{steps: []step{notModified}}
	p := newPoller(r, nil)
	for i := 0; i < 3; i++ {
		out, err := p.Poll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Unchanged, out)
		assert.Equal(t, time.Second, p.NextDelay())
	}
}

func TestPoll_TimeoutsDoubleBackoff(t *testing.T) {
	r := &scriptedReader{steps: []step{{stall: true}}}
	p := newPoller(r, nil)
	for i := 0; i < 2; i++ {
		out, err := p.Poll(context.Background())
		assert.Error(t, err)
		assert.Equal(t, Failed, out)
	}
	assert.Equal(t, 4, p.Backoff())
	assert.Equal(t, 4*time.Second, p.NextDelay())
	assert.Equal(t, StateBackoff, p.State())
}

func TestPoll_BackoffCapsAndResets(t *testing.T) {
	r := &scriptedReader{steps: []step{{err: store.ErrTransport}}}
	p := newPoller(r, nil)
	for i := 0; i < 10; i++ {
		_, _ = p.Poll(context.Background())
	}
	assert.Equal(t, DefaultMaxBackoff, p.Backoff())
	assert.Equal(t, 32*time.Second, p.NextDelay())

	r.mu.Lock()
	r.steps = []step{notModified}
	r.mu.Unlock()
	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, 1, p.Backoff())
	assert.Equal(t, StateIdle, p.State())
}

func TestNextDelay_FloorsInterval(t *testing.T) {
	p := New(&scriptedReader{steps: []step{notModified}}, Config{Enabled: true, Interval: 200 * time.Millisecond}, nil)
	assert.Equal(t, MinInterval, p.NextDelay())
}

func TestPoll_AtMostOneInFlight(t *testing.T) {
	r := &scriptedReader{steps: []step{notModified}, block: make(chan struct{})}
	cfg := DefaultConfig()
	p := New(r, cfg, nil)

	done := make(chan Outcome)
	go func() {
		out, _ := p.Poll(context.Background())
		done <- out
	}()
	require.Eventually(t, func() bool { return p.State() == StatePolling }, time.Second, time.Millisecond)

	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)

	close(r.block)
	assert.Equal(t, Unchanged, <-done)
	assert.Equal(t, int32(1), r.maxSeen.Load())
}

func TestPoll_HiddenViewSkipsWithoutPenalty(t *testing.T) {
	r := &scriptedReader{steps: []step{notModified}}
	sw := NewSwitch(false, true)
	p := newPoller(r, nil, WithVisibility(sw))

	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)
	assert.Equal(t, 1, p.Backoff())
	assert.Zero(t, r.calls)

	sw.SetVisible(true)
	sw.SetFocused(false)
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Skipped, out)

	sw.SetFocused(true)
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, 1, r.calls)
}

func TestPoll_FirstBodyIsBaseline(t *testing.T) {
	r := &scriptedReader{steps: []step{body(docA), body(docA), body(docB)}}
	var changes []*board.Document
	p := newPoller(r, func(d *board.Document, _ store.Token) { changes = append(changes, d) })

	out, _ := p.Poll(context.Background())
	assert.Equal(t, Unchanged, out, "baseline")
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Unchanged, out, "same text")
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Changed, out)

	require.Len(t, changes, 1)
	assert.Equal(t, []string{"Ana", "Bo"}, changes[0].LegionData[0].AllPlayers)
}

func TestPoll_PrimedDocumentComparesStructurally(t *testing.T) {
	loaded, err := board.Parse([]byte(docA))
	require.NoError(t, err)

	// same document, different formatting
	spaced := "{\n  \"buildings\": [],\n  \"legion_data\": [{\"legion_id\": \"L1\", \"all_players\": [\"Ana\"], \"stages\": []}]\n}"
	r := &scriptedReader{steps: []step{body(spaced), body(docB)}}
	calls := 0
	p := newPoller(r, func(*board.Document, store.Token) { calls++ })
	p.Prime(loaded, store.Token{ETag: `"v1"`}, nil)

	out, _ := p.Poll(context.Background())
	assert.Equal(t, Unchanged, out)
	assert.Zero(t, calls)

	out, _ = p.Poll(context.Background())
	assert.Equal(t, Changed, out)
	assert.Equal(t, 1, calls)
	assert.Equal(t, `"v1"`, r.tokens[0].ETag, "primed token is presented")
}

func TestPoll_VersionOnlyChangeIsUnchanged(t *testing.T) {
	loaded, err := board.Parse([]byte(docA))
	require.NoError(t, err)

	bumped := `{"buildings":[],"legion_data":[{"legion_id":"L1","all_players":["Ana"],"stages":[]}],"meta":{"version":7,"updated_at":"2024-01-01 10:00:00"}}`
	r := &scriptedReader{steps: []step{body(bumped)}}
	calls := 0
	p := newPoller(r, func(*board.Document, store.Token) { calls++ })
	p.Prime(loaded, store.Token{ETag: `"v1"`}, nil)

	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Zero(t, calls)
}

func TestPoll_ParseFailureKeepsLastDocument(t *testing.T) {
	r := &scriptedReader{steps: []step{body(docA), body("{not json"), body(docB)}}
	calls := 0
	p := newPoller(r, func(*board.Document, store.Token) { calls++ })

	_, _ = p.Poll(context.Background())
	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, 1, p.Backoff())
	assert.Zero(t, calls)

	out, _ = p.Poll(context.Background())
	assert.Equal(t, Changed, out)
	assert.Equal(t, 1, calls)
}

func TestPoll_EmptyBodyResetsBackoff(t *testing.T) {
	r := &scriptedReader{steps: []step{{err: errors.New("boom")}, {res: store.ReadResult{}}}}
	p := newPoller(r, nil)
	_, _ = p.Poll(context.Background())
	assert.Equal(t, 2, p.Backoff())
	out, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, 1, p.Backoff())
}

func TestPoll_TokenCarriedForward(t *testing.T) {
	r := &scriptedReader{steps: []step{
		{res: store.ReadResult{Body: []byte(docA), Token: store.Token{ETag: `"a"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}}},
		notModified,
	}}
	p := newPoller(r, nil)
	_, _ = p.Poll(context.Background())
	_, _ = p.Poll(context.Background())

	require.Len(t, r.tokens, 2)
	assert.True(t, r.tokens[0].IsZero())
	assert.Equal(t, `"a"`, r.tokens[1].ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", r.tokens[1].LastModified)
}

func TestEnableFor_ExpiresAndRaisesInterval(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := &scriptedReader{steps: []step{notModified}}
	cfg := Config{Enabled: false, Interval: 2 * time.Second}
	p := New(r, cfg, nil, WithClock(clock))

	out, _ := p.Poll(context.Background())
	assert.Equal(t, Disabled, out)

	p.EnableFor(DefaultOverride, 5*time.Second)
	assert.Equal(t, 5*time.Second, p.NextDelay())
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Unchanged, out)

	now = now.Add(DefaultOverride)
	out, _ = p.Poll(context.Background())
	assert.Equal(t, Disabled, out)
	assert.False(t, p.Enabled())
}

func TestEnableFor_KeepsLargerConfiguredInterval(t *testing.T) {
	p := New(&scriptedReader{steps: []step{notModified}}, Config{Interval: 4 * time.Second}, nil)
	p.EnableFor(time.Minute, 2*time.Second)
	assert.Equal(t, 4*time.Second, p.NextDelay())
}

func TestRun_DeliversChanges(t *testing.T) {
	r := &scriptedReader{steps: []step{body(docA), body(docB)}}
	got := make(chan *board.Document, 1)
	p := New(r, Config{Enabled: true, Interval: time.Millisecond, Timeout: time.Second}, func(d *board.Document, _ store.Token) {
		select {
		case got <- d:
		default:
		}
	})
	p.floor = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	select {
	case d := <-got:
		assert.Len(t, d.LegionData[0].AllPlayers, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestRun_DisabledWaitsForOverride(t *testing.T) {
	r := &scriptedReader{steps: []step{notModified}}
	p := New(r, Config{Interval: time.Millisecond, Timeout: time.Second}, nil)
	p.floor = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	assert.Zero(t, r.calls)
	r.mu.Unlock()

	p.EnableFor(time.Minute, time.Millisecond)
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.calls > 0
	}, time.Second, time.Millisecond)
}
