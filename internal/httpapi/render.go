package httpapi

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
)

// RenderBoard draws the stored document for one legion and stage. Query
// parameters: legion, stage, filter and grid.
func RenderBoard(b store.Backend, cfg view.Config, f view.Format, log *zap.Logger) http.HandlerFunc {
	contentType := "image/svg+xml"
	if f == view.FormatPNG {
		contentType = "image/png"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := b.Load(r.Context())
		if err != nil {
			log.Error("load document", zap.Error(err))
			http.Error(w, "failed to load document", http.StatusInternalServerError)
			return
		}
		doc, err := board.Parse(snap.Body)
		if err != nil {
			log.Error("stored document unreadable", zap.Error(err))
			http.Error(w, "stored document is unreadable", http.StatusInternalServerError)
			return
		}

		q := r.URL.Query()
		sess := view.Session{LegionID: q.Get("legion"), Filter: q.Get("filter")}
		if s := q.Get("stage"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "stage must be a number", http.StatusBadRequest)
				return
			}
			sess.Stage = n
		}
		sess.Grid, _ = strconv.ParseBool(q.Get("grid"))

		var buf bytes.Buffer
		if err := view.Render(&buf, view.Build(doc, sess, cfg), f); err != nil {
			log.Error("render board", zap.Error(err))
			http.Error(w, "failed to render", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("ETag", snap.ETag)
		_, _ = w.Write(buf.Bytes())
	}
}
