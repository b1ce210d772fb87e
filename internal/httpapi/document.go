package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/store"
)

// ServeDocument answers conditional reads of the plan document. A request
// carrying the current ETag, or a Last-Modified not older than the stored
// one, gets a bodiless 304.
func ServeDocument(b store.Backend, m *Metrics, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := b.Load(r.Context())
		if err != nil {
			log.Error("load document", zap.Error(err))
			m.Reads.WithLabelValues("error").Inc()
			http.Error(w, "failed to load document", http.StatusInternalServerError)
			return
		}
		m.Version.Set(float64(snap.Version))

		h := w.Header()
		h.Set("Cache-Control", "no-cache, must-revalidate")
		h.Set("ETag", snap.ETag)
		if !snap.UpdatedAt.IsZero() {
			h.Set("Last-Modified", snap.UpdatedAt.UTC().Format(http.TimeFormat))
		}

		if notModified(r, snap) {
			m.Reads.WithLabelValues("not_modified").Inc()
			w.WriteHeader(http.StatusNotModified)
			return
		}

		m.Reads.WithLabelValues("ok").Inc()
		h.Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(snap.Body)
	}
}

func notModified(r *http.Request, snap store.Snapshot) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || strings.TrimPrefix(tag, "W/") == snap.ETag {
				return true
			}
		}
		return false
	}
	ims := r.Header.Get("If-Modified-Since")
	if ims == "" || snap.UpdatedAt.IsZero() {
		return false
	}
	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}
	return !snap.UpdatedAt.Truncate(time.Second).After(t)
}
