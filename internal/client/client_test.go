package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

func TestRead_ConditionalHeaders(t *testing.T) {
	var mu sync.Mutex
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Clone(context.Background()))
		mu.Unlock()
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 01 May 2024 18:30:00 GMT")
		_, _ = w.Write([]byte(`{"buildings":[],"legion_data":[]}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	first, err := c.Read(context.Background(), store.Token{})
	require.NoError(t, err)
	assert.False(t, first.Unchanged)
	assert.Equal(t, `"v1"`, first.Token.ETag)
	assert.Equal(t, "Wed, 01 May 2024 18:30:00 GMT", first.Token.LastModified)

	second, err := c.Read(context.Background(), first.Token)
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, first.Token, second.Token)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0].URL.Query().Get("_"), "first read busts caches")
	assert.Empty(t, seen[1].URL.Query().Get("_"))
	assert.Equal(t, "Wed, 01 May 2024 18:30:00 GMT", seen[1].Header.Get("If-Modified-Since"))
}

func TestRead_FailuresAreTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Read(context.Background(), store.Token{})
	assert.ErrorIs(t, err, store.ErrTransport)

	srv.Close()
	_, err = c.Read(context.Background(), store.Token{})
	assert.ErrorIs(t, err, store.ErrTransport)
}

func TestWrite_StatusMapping(t *testing.T) {
	cases := []struct {
		status   int
		code     string
		wantKind error
	}{
		{http.StatusBadRequest, "missing_buildings", store.ErrValidation},
		{http.StatusUnsupportedMediaType, "invalid_content_type", store.ErrValidation},
		{http.StatusUnauthorized, "not_authenticated", store.ErrAuth},
		{http.StatusServiceUnavailable, "lock_failed", store.ErrConcurrentWrite},
		{http.StatusInternalServerError, "write_failed", store.ErrTransport},
		{http.StatusBadGateway, "", store.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				if tc.code != "" {
					_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": tc.code, "message": "nope"})
				}
			}))
			defer srv.Close()

			c, err := New(srv.URL)
			require.NoError(t, err)
			_, err = c.Write(context.Background(), board.Empty())
			require.ErrorIs(t, err, tc.wantKind)
			if tc.code != "" {
				assert.Equal(t, tc.code, store.CodeOf(err))
			}
		})
	}
}

func TestWrite_SendsPayloadAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SavePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get(types.AdminKeyHeader))

		var req struct {
			Payload board.Document `json:"payload"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Payload.Buildings, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "Data saved successfully", "version": 8})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithAdminKey("secret"))
	require.NoError(t, err)
	d := board.Empty()
	d.Buildings = append(d.Buildings, board.Building{ID: "b1"})
	ack, err := c.Write(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 8, ack.Version)
	assert.Equal(t, "Data saved successfully", ack.Message)
}
