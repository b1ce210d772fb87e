// Package view runs the two view instances, editor and preview, on top of
// the document: the selection each one holds, the scene rebuilt from it and
// the sync wiring between them.
package view

import "github.com/DoyleJ11/foundry-planner/internal/board"

// Session is the selection a view renders with. It is passed explicitly to
// every rebuild; nothing about it lives in package state.
type Session struct {
	LegionID string
	Stage    int
	// Filter limits the roster to players holding this building.
	Filter string
	Grid   bool
}

// Resolve finds the active legion and stage. An unknown or empty legion id
// falls back to the first legion. Stage 0 means no selection and resolves
// to the legion's first stage; a selected stage that does not exist yet
// resolves to nil, since the first assignment into it creates it. Either
// result may be nil.
func (s Session) Resolve(d *board.Document) (*board.Legion, *board.Stage) {
	if d == nil || len(d.LegionData) == 0 {
		return nil, nil
	}
	l, ok := d.Legion(s.LegionID)
	if !ok {
		l = &d.LegionData[0]
	}
	if s.Stage != 0 {
		st, _ := l.Stage(s.Stage)
		return l, st
	}
	if len(l.Stages) > 0 {
		return l, &l.Stages[0]
	}
	return l, nil
}

// Normalized pins the session to the legion Resolve picked and, when no
// stage is selected, to its first stage. A selected stage is kept even when
// the document does not have it.
func (s Session) Normalized(d *board.Document) Session {
	l, st := s.Resolve(d)
	if l != nil {
		s.LegionID = l.LegionID
	}
	if s.Stage == 0 && st != nil {
		s.Stage = st.StageNumber
	}
	return s
}
