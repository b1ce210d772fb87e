package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/hub"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

const validPayload = `{"payload":{"buildings":[{"id":"b1","gridX":10,"gridY":10}],"legion_data":[{"legion_id":"L1","all_players":["Ana"],"stages":[{"stage_number":1,"assignments":[{"building_id":"b1","player_names":["Ana"]}]}]}]}}`

type fixture struct {
	srv   http.Handler
	store *store.MemoryStore
	hub   *hub.Hub
}

func newFixture(t *testing.T, auth Authenticator, limiter *IPRateLimiter) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, zap.NewNop())
	st := store.NewMemoryStore()
	srv := SetupRoutes(Deps{
		Hub:            h,
		Store:          st,
		Auth:           auth,
		Metrics:        NewMetrics(),
		Limiter:        limiter,
		Board:          view.DefaultConfig(),
		AllowedOrigins: []string{"https://planner.example"},
	})
	return fixture{srv: srv, store: st, hub: h}
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func jsonHeaders(key string) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if key != "" {
		h[types.AdminKeyHeader] = key
	}
	return h
}

func decodeSave(t *testing.T, rec *httptest.ResponseRecorder) types.SaveResponse {
	t.Helper()
	var resp types.SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSaveDocument_Rejections(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", "secret"), nil)

	tests := []struct {
		name    string
		method  string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
		{"not json", http.MethodPost, validPayload, map[string]string{"Content-Type": "text/plain", types.AdminKeyHeader: "secret"}, http.StatusUnsupportedMediaType, "invalid_content_type"},
		{"no key", http.MethodPost, validPayload, jsonHeaders(""), http.StatusUnauthorized, "not_authenticated"},
		{"wrong key", http.MethodPost, validPayload, jsonHeaders("guess"), http.StatusUnauthorized, "not_authenticated"},
		{"empty body", http.MethodPost, "", jsonHeaders("secret"), http.StatusBadRequest, "empty_body"},
		{"broken json", http.MethodPost, `{"payload":`, jsonHeaders("secret"), http.StatusBadRequest, "invalid_json"},
		{"no payload", http.MethodPost, `{"data":{}}`, jsonHeaders("secret"), http.StatusBadRequest, "invalid_json"},
		{"null payload", http.MethodPost, `{"payload":null}`, jsonHeaders("secret"), http.StatusBadRequest, "invalid_json"},
		{"no buildings", http.MethodPost, `{"payload":{"legion_data":[]}}`, jsonHeaders("secret"), http.StatusBadRequest, "missing_buildings"},
		{"no legions", http.MethodPost, `{"payload":{"buildings":[]}}`, jsonHeaders("secret"), http.StatusBadRequest, "missing_legion_data"},
		{"duplicate building", http.MethodPost, `{"payload":{"buildings":[{"id":"b1"},{"id":"b1"}],"legion_data":[]}}`, jsonHeaders("secret"), http.StatusBadRequest, "duplicate_building"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(tc.method, "/api/save", tc.body, tc.headers)
			assert.Equal(t, tc.status, rec.Code)
			resp := decodeSave(t, rec)
			assert.False(t, resp.OK)
			assert.Equal(t, tc.code, resp.Error)
		})
	}

	snap, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Version, "no rejected request reached the store")
}

func TestSaveDocument_BumpsVersion(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", "secret"), nil)

	for want := 1; want <= 2; want++ {
		rec := f.do(http.MethodPost, "/api/save", validPayload, map[string]string{
			"Content-Type":       "Application/JSON; charset=utf-8",
			types.AdminKeyHeader: "secret",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeSave(t, rec)
		assert.True(t, resp.OK)
		assert.Equal(t, "Data saved successfully", resp.Message)
		assert.Equal(t, want, resp.Version)
	}
}

func TestAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name string
		auth Authenticator
		key  string
		want bool
	}{
		{"open", NewAuthenticator("", ""), "", true},
		{"plain match", NewAuthenticator("", "pw"), "pw", true},
		{"plain mismatch", NewAuthenticator("", "pw"), "pW", false},
		{"hash match", NewAuthenticator(string(hash), ""), "hunter2", true},
		{"hash mismatch", NewAuthenticator(string(hash), ""), "hunter3", false},
		{"hash wins over plain", NewAuthenticator(string(hash), "pw"), "pw", false},
		{"hash empty key", NewAuthenticator(string(hash), ""), "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/save", nil)
			if tc.key != "" {
				req.Header.Set(types.AdminKeyHeader, tc.key)
			}
			assert.Equal(t, tc.want, tc.auth.Check(req))
		})
	}
	assert.False(t, NewAuthenticator("", "").Enabled())
	assert.True(t, NewAuthenticator("", "pw").Enabled())
}

type lockedStore struct{ *store.MemoryStore }

func (lockedStore) Save(context.Context, *board.Document) (store.Snapshot, error) {
	return store.Snapshot{}, &store.WriteError{Kind: store.ErrConcurrentWrite, Code: "lock_failed", Message: "Could not acquire file lock, please try again"}
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Save(context.Context, *board.Document) (store.Snapshot, error) {
	return store.Snapshot{}, errors.New("disk full")
}

func TestSaveDocument_StoreFailures(t *testing.T) {
	tests := []struct {
		name    string
		backend store.Backend
		status  int
		code    string
	}{
		{"locked", lockedStore{store.NewMemoryStore()}, http.StatusServiceUnavailable, "lock_failed"},
		{"unclassified", brokenStore{store.NewMemoryStore()}, http.StatusInternalServerError, "write_failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := SaveDocument(tc.backend, NewAuthenticator("", ""), NewMetrics(), zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/api/save", strings.NewReader(validPayload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeSave(t, rec).Error)
		})
	}
}

func TestServeDocument_Conditional(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/save", validPayload, jsonHeaders("")).Code)

	rec := f.do(http.MethodGet, "/foundry_map_data.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	lastMod := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, etag)
	require.NotEmpty(t, lastMod)
	assert.Equal(t, "no-cache, must-revalidate", rec.Header().Get("Cache-Control"))

	doc, err := board.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Meta.Version)

	t.Run("matching etag", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/foundry_map_data.json", "", map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.Bytes())
	})
	t.Run("stale etag wins over date", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/document", "", map[string]string{
			"If-None-Match":     `"stale"`,
			"If-Modified-Since": lastMod,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("not modified since", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/foundry_map_data.json", "", map[string]string{"If-Modified-Since": lastMod})
		assert.Equal(t, http.StatusNotModified, rec.Code)
	})
	t.Run("modified since", func(t *testing.T) {
		old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)
		rec := f.do(http.MethodGet, "/foundry_map_data.json", "", map[string]string{"If-Modified-Since": old})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), nil)

	rec := f.do(http.MethodPost, "/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Code, 6)
	assert.NotNil(t, f.hub.Lookup(resp.Code))
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'), "unexpected %q", c)
		}
	}
}

func TestRenderBoard(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/save", validPayload, jsonHeaders("")).Code)

	rec := f.do(http.MethodGet, "/render.svg?legion=L1&stage=1&grid=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = f.do(http.MethodGet, "/render.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = f.do(http.MethodGet, "/render.svg?stage=two", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), nil)
	f.do(http.MethodGet, "/foundry_map_data.json", "", nil)
	f.do(http.MethodPost, "/api/save", validPayload, jsonHeaders(""))

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `planner_document_reads_total{result="ok"} 1`)
	assert.Contains(t, body, `planner_document_writes_total{result="ok"} 1`)
	assert.Contains(t, body, "planner_document_version 1")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), NewIPRateLimiter(rate.Every(time.Hour), 2))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/foundry_map_data.json", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/foundry_map_data.json", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/foundry_map_data.json", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code, "health checks are not limited")
}

func TestIPRateLimiter_ReusesAndPrunes(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))

	for i := 0; i <= cleanupThreshold; i++ {
		l.GetLimiter(strings.Repeat("x", i+1))
	}
	l.mu.Lock()
	for _, e := range l.ips {
		e.lastSeen = time.Now().Add(-2 * maxIdleAge)
	}
	l.mu.Unlock()

	l.GetLimiter("fresh")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.ips, 1)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, NewAuthenticator("", ""), nil)

	rec := f.do(http.MethodOptions, "/api/save", "", map[string]string{"Origin": "https://planner.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://planner.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), types.AdminKeyHeader)

	rec = f.do(http.MethodGet, "/healthz", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
