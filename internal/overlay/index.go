// Package overlay computes what is drawn over the board for the active
// stage: highlighted roster rows and connector curves to their buildings.
package overlay

import (
	"slices"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// Index maps a player to the buildings they hold in one stage, in
// assignment order.
type Index map[string][]string

func BuildIndex(stage *board.Stage) Index {
	ix := Index{}
	if stage == nil {
		return ix
	}
	for _, a := range stage.Assignments {
		for _, p := range a.PlayerNames {
			if !slices.Contains(ix[p], a.BuildingID) {
				ix[p] = append(ix[p], a.BuildingID)
			}
		}
	}
	return ix
}

// Buildings lists what player is assigned to, for the highlight action.
func (ix Index) Buildings(player string) []string { return ix[player] }

// VisiblePlayers applies the roster filter. An empty filter shows the whole
// roster; a building nobody holds shows nobody.
func VisiblePlayers(roster []string, stage *board.Stage, filter string) []string {
	if filter == "" {
		return roster
	}
	if stage == nil {
		return nil
	}
	a, ok := stage.Assignment(filter)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range roster {
		if a.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// FilterOptions lists buildings with an assignment in stage, in document
// order.
func FilterOptions(d *board.Document, stage *board.Stage) []board.Building {
	if stage == nil {
		return nil
	}
	var out []board.Building
	for _, b := range d.Buildings {
		if _, ok := stage.Assignment(b.ID); ok {
			out = append(out, b)
		}
	}
	return out
}
