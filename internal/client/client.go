// Package client talks to a planner server over HTTP: conditional reads of
// the document and full-document writes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

const (
	DocumentPath = "/foundry_map_data.json"
	SavePath     = "/api/save"
)

type Client struct {
	base     *url.URL
	http     *http.Client
	adminKey string
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithAdminKey(key string) Option { return func(c *Client) { c.adminKey = key } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{base: u, http: http.DefaultClient, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) *url.URL {
	return c.base.ResolveReference(&url.URL{Path: path})
}

// Read fetches the document, presenting tok so an unchanged document costs a
// 304. Without a token a cache-busting query is added.
func (c *Client) Read(ctx context.Context, tok store.Token) (store.ReadResult, error) {
	u := c.endpoint(DocumentPath)
	if tok.IsZero() {
		q := u.Query()
		q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return store.ReadResult{}, fmt.Errorf("%w: %v", store.ErrTransport, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	if tok.ETag != "" {
		req.Header.Set("If-None-Match", tok.ETag)
	}
	if tok.LastModified != "" {
		req.Header.Set("If-Modified-Since", tok.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return store.ReadResult{}, fmt.Errorf("%w: %v", store.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return store.ReadResult{Unchanged: true, Token: tok}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return store.ReadResult{}, fmt.Errorf("%w: status %d", store.ErrTransport, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.ReadResult{}, fmt.Errorf("%w: %v", store.ErrTransport, err)
	}
	return store.ReadResult{
		Body: body,
		Token: store.Token{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

// Write replaces the stored document. Failures come back as
// *store.WriteError with the kind mapped from the response status.
func (c *Client) Write(ctx context.Context, doc *board.Document) (store.WriteAck, error) {
	payload, err := board.Encode(doc)
	if err == nil {
		payload, err = json.Marshal(types.SaveRequest{Payload: payload})
	}
	if err != nil {
		return store.WriteAck{}, &store.WriteError{Kind: store.ErrValidation, Code: "json_encode_failed", Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(SavePath).String(), bytes.NewReader(payload))
	if err != nil {
		return store.WriteAck{}, fmt.Errorf("%w: %v", store.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminKey != "" {
		req.Header.Set(types.AdminKeyHeader, c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return store.WriteAck{}, &store.WriteError{Kind: store.ErrTransport, Code: "network", Message: err.Error()}
	}
	defer resp.Body.Close()

	var out types.SaveResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if decodeErr != nil {
			return store.WriteAck{}, &store.WriteError{Kind: store.ErrParse, Code: "bad_response", Message: decodeErr.Error()}
		}
		if !out.OK {
			return store.WriteAck{}, &store.WriteError{Kind: store.ErrValidation, Code: out.Error, Message: out.Message}
		}
		return store.WriteAck{Version: out.Version, Message: out.Message}, nil
	}

	werr := &store.WriteError{Kind: kindForStatus(resp.StatusCode), Code: out.Error, Message: out.Message}
	if werr.Code == "" {
		werr.Code = "http_" + strconv.Itoa(resp.StatusCode)
	}
	c.log.Debug("write rejected", zap.Int("status", resp.StatusCode), zap.String("code", werr.Code))
	return store.WriteAck{}, werr
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity,
		http.StatusRequestEntityTooLarge:
		return store.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return store.ErrAuth
	case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable:
		return store.ErrConcurrentWrite
	default:
		return store.ErrTransport
	}
}
