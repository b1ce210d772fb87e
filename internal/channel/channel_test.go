package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

func sampleDoc() *board.Document {
	d := board.Empty()
	d.Buildings = append(d.Buildings, board.Building{ID: "b1", GridX: board.Float(2), GridY: board.Float(-1)})
	d.LegionData = append(d.LegionData, board.Legion{LegionID: "L1", AllPlayers: []string{"Ana"}, Stages: []board.Stage{}})
	d.Meta.Version = 7
	return d
}

func recv(t *testing.T, c Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := c.Recv(ctx)
	require.NoError(t, err)
	return m
}

func TestCodec(t *testing.T) {
	for _, m := range []Message{Ready{}, Ping{}, Pong{}} {
		data, err := Encode(m)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	data, err := Encode(Update{Doc: sampleDoc()})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"update"`)
	got, err := Decode(data)
	require.NoError(t, err)
	up, ok := got.(Update)
	require.True(t, ok)
	assert.True(t, board.Equal(sampleDoc(), up.Doc))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"shout"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, board.ErrSyntax)

	_, err = Decode([]byte(`{"type":"update","payload":"nope"}`))
	assert.ErrorIs(t, err, board.ErrSyntax)

	_, err = Encode(Update{})
	assert.Error(t, err)
}

func TestPipe_UpdateIsCopied(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	doc := sampleDoc()
	require.NoError(t, a.Send(context.Background(), Update{Doc: doc}))
	doc.LegionData[0].AllPlayers[0] = "changed"

	up := recv(t, b).(Update)
	assert.Equal(t, "Ana", up.Doc.LegionData[0].AllPlayers[0])
}

func TestPipe_CloseEndsBoth(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, b.Close())
	assert.ErrorIs(t, a.Send(context.Background(), Ping{}), ErrClosed)
	_, err := a.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDispatcher_ReadyThenUpdate(t *testing.T) {
	editorEnd, previewEnd := Pipe()
	defer editorEnd.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	current := sampleDoc()
	editor := NewDispatcher(editorEnd, Handlers{
		OnReady: func(ctx context.Context) error {
			return editorEnd.Send(ctx, Update{Doc: current})
		},
	}, nil)
	go func() { _ = editor.Run(ctx) }()

	got := make(chan *board.Document, 1)
	preview := NewDispatcher(previewEnd, Handlers{
		OnUpdate: func(_ context.Context, d *board.Document) error {
			got <- d
			return nil
		},
	}, nil)
	go func() { _ = preview.Run(ctx) }()

	require.NoError(t, previewEnd.Send(ctx, Ready{}))
	select {
	case d := <-got:
		assert.Equal(t, 7, d.Meta.Version)
	case <-time.After(time.Second):
		t.Fatal("preview never received update")
	}
}

func TestProbe(t *testing.T) {
	editorEnd, previewEnd := Pipe()
	defer editorEnd.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	editor := NewDispatcher(editorEnd, Handlers{}, nil)
	go func() { _ = editor.Run(ctx) }()

	t.Run("no listener times out", func(t *testing.T) {
		err := editor.Probe(ctx, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrProbeTimeout)
		_ = recv(t, previewEnd) // drain the unanswered ping
	})

	t.Run("preview answers", func(t *testing.T) {
		preview := NewDispatcher(previewEnd, Handlers{}, nil)
		go func() { _ = preview.Run(ctx) }()
		assert.NoError(t, editor.Probe(ctx, ProbeTimeout))
	})
}

// brokenConn fails every receive with a transport error.
type brokenConn struct{ Conn }

func (brokenConn) Recv(context.Context) (Message, error) {
	return nil, errors.New("connection reset")
}

func TestDispatcher_StopsOnClose(t *testing.T) {
	a, b := Pipe()
	d := NewDispatcher(b, Handlers{}, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	require.NoError(t, a.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_ReturnsTransportErrors(t *testing.T) {
	_, b := Pipe()
	d := NewDispatcher(brokenConn{Conn: b}, Handlers{}, nil)
	err := d.Run(context.Background())
	assert.EqualError(t, err, "connection reset")
}

func TestWSConn_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConn(c)
		defer conn.Close()
		// echo until the client goes away
		for {
			m, err := conn.Recv(r.Context())
			if err != nil {
				return
			}
			if err := conn.Send(r.Context(), m); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ctx, Update{Doc: sampleDoc()}))
	m, err := conn.Recv(ctx)
	require.NoError(t, err)
	up, ok := m.(Update)
	require.True(t, ok)
	assert.Equal(t, "b1", up.Doc.Buildings[0].ID)
}
