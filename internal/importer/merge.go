package importer

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/engine"
)

// Result is the merged document and the number of player/assignment pairs
// that did not exist before.
type Result struct {
	Doc   *board.Document
	Added int
}

// Merge folds rows into a copy of d. Missing legions, stages and assignments
// are created on the way; importing the same rows again adds nothing.
func Merge(d *board.Document, rows []Row) (Result, error) {
	doc := d
	if doc == nil {
		doc = board.Empty()
	}
	added := 0
	for i, r := range rows {
		var err error
		if _, ok := doc.Legion(board.CleanName(r.LegionID)); !ok {
			_, doc, err = engine.Apply(doc, engine.Command{Type: engine.CmdAddLegion, LegionID: r.LegionID})
			if err != nil && !errors.Is(err, engine.ErrLegionExists) {
				return Result{}, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		_, doc, err = engine.Apply(doc, engine.Command{Type: engine.CmdAddPlayer, LegionID: r.LegionID, Player: r.Player})
		if err != nil {
			return Result{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		events, next, err := engine.Apply(doc, engine.Command{
			Type:       engine.CmdAssign,
			LegionID:   r.LegionID,
			Stage:      r.Stage,
			BuildingID: r.BuildingID,
			Player:     r.Player,
		})
		if err != nil {
			return Result{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		doc = next
		added += engine.CountEvents(events, engine.EvtPlayerAssigned)
	}
	if doc == d {
		doc = d.Clone()
	}
	return Result{Doc: doc, Added: added}, nil
}
