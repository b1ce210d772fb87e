package overlay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/geometry"
)

func stage() *board.Stage {
	return &board.Stage{
		StageNumber: 1,
		Assignments: []board.Assignment{
			{BuildingID: "b1", PlayerNames: []string{"Ana", "Bo"}},
			{BuildingID: "b2", PlayerNames: []string{"Ana"}},
			{BuildingID: "b3", PlayerNames: []string{}},
		},
	}
}

func TestBuildIndex(t *testing.T) {
	ix := BuildIndex(stage())
	assert.Equal(t, []string{"b1", "b2"}, ix.Buildings("Ana"))
	assert.Equal(t, []string{"b1"}, ix.Buildings("Bo"))
	assert.Empty(t, ix.Buildings("Cy"))
	assert.Empty(t, BuildIndex(nil))
}

func TestVisiblePlayers(t *testing.T) {
	roster := []string{"Ana", "Bo", "Cy"}
	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"no filter", "", roster},
		{"shared building", "b1", []string{"Ana", "Bo"}},
		{"single holder", "b2", []string{"Ana"}},
		{"empty assignment", "b3", nil},
		{"unassigned building", "b9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VisiblePlayers(roster, stage(), tt.filter))
		})
	}
}

func TestFilterOptions(t *testing.T) {
	d := board.Empty()
	d.Buildings = []board.Building{{ID: "b2"}, {ID: "b9"}, {ID: "b1"}}
	opts := FilterOptions(d, stage())
	require.Len(t, opts, 2)
	assert.Equal(t, "b2", opts[0].ID)
	assert.Equal(t, "b1", opts[1].ID)
}

func TestHue(t *testing.T) {
	tests := map[string]int{
		"b":           98,
		"":            98,
		"b1":          207,
		"B12":         195,
		"tower-north": 177,
		"城":           158,
		"😀x":          229,
	}
	for id, want := range tests {
		assert.Equal(t, want, Hue(id), id)
	}
	assert.Equal(t, ColorFor("b1"), ColorFor("b1"))
}

func TestHSL(t *testing.T) {
	assert.Equal(t, RGB{204, 25, 25}, HSL(0, 0.78, 0.45))
	assert.Equal(t, RGB{25, 204, 25}, HSL(120, 0.78, 0.45))
	assert.Equal(t, RGB{25, 124, 204}, ColorFor("b1"))
	assert.Equal(t, "#197ccc", ColorFor("b1").Hex())
}

func TestBuild_HighlightAndAnchors(t *testing.T) {
	rows := []Row{
		{Player: "Ana", Name: geometry.Rect{X: 10, Y: 20, W: 30, H: 13}},
		{Player: "Cy", Name: geometry.Rect{X: 10, Y: 49, W: 14, H: 13}},
	}
	centers := map[string]geometry.Point{"b1": {X: 300, Y: 200}, "b2": {X: 400, Y: 120}}

	out := Build(Input{Rows: rows, Index: BuildIndex(stage()), Centers: centers})
	require.Len(t, out.Highlights, 1, "rows without assignments get nothing")
	assert.Equal(t, geometry.Rect{X: 4, Y: 16, W: 42, H: 21}, out.Highlights[0].Rect)

	require.Len(t, out.Connectors, 2)
	for _, c := range out.Connectors {
		assert.Equal(t, geometry.Point{X: 46, Y: 26.5}, c.Start, "panel on the left anchors at the right edge")
		assert.Equal(t, centers[c.BuildingID], c.End)
		assert.Equal(t, ColorFor(c.BuildingID), c.Color)
	}

	right := Build(Input{Rows: rows, Index: BuildIndex(stage()), Centers: centers, PanelRight: true})
	assert.Equal(t, 4.0, right.Connectors[0].Start.X)
}

func TestBuild_FanOut(t *testing.T) {
	st := &board.Stage{Assignments: []board.Assignment{
		{BuildingID: "b1", PlayerNames: []string{"Ana"}},
		{BuildingID: "b2", PlayerNames: []string{"Ana"}},
		{BuildingID: "b3", PlayerNames: []string{"Ana"}},
	}}
	rows := []Row{{Player: "Ana", Name: geometry.Rect{X: 0, Y: 0, W: 20, H: 12}}}
	centers := map[string]geometry.Point{"b1": {X: 1000, Y: 10}, "b2": {X: 1000, Y: 10}, "b3": {X: 1000, Y: 10}}

	out := Build(Input{Rows: rows, Index: BuildIndex(st), Centers: centers})
	require.Len(t, out.Connectors, 3)

	// spread = min(14, 6+floor(3/3)) = 7, offsets -7, 0, +7
	start := out.Connectors[0].Start
	for i, want := range []float64{-7, 0, 7} {
		c := out.Connectors[i]
		assert.InDelta(t, start.Y+want*0.4, c.C1.Y, 1e-9)
		assert.InDelta(t, c.End.Y+want*0.4, c.C2.Y, 1e-9)
	}
	// long connectors cap smoothness at 0.5
	c := out.Connectors[0]
	dx := c.End.X - c.Start.X
	assert.InDelta(t, c.Start.X+dx*0.5, c.C1.X, 1e-9)
	assert.InDelta(t, c.End.X-dx*0.5, c.C2.X, 1e-9)
}

func TestBuild_SkipsUndrawnBuildings(t *testing.T) {
	rows := []Row{{Player: "Ana", Name: geometry.Rect{W: 10, H: 10}}}
	out := Build(Input{Rows: rows, Index: BuildIndex(stage()), Centers: map[string]geometry.Point{"b2": {X: 50, Y: 50}}})
	require.Len(t, out.Connectors, 1)
	c := out.Connectors[0]
	assert.Equal(t, "b2", c.BuildingID)
	// total is still 2, so the first drawn curve takes offset -3
	assert.InDelta(t, c.Start.Y-3*0.4, c.C1.Y, 1e-9)
}

func TestPanelIsRight(t *testing.T) {
	mapArea := geometry.Rect{X: 0, Y: 0, W: 1000, H: 800}
	assert.True(t, PanelIsRight(geometry.Rect{X: 800}, mapArea))
	assert.False(t, PanelIsRight(geometry.Rect{X: 500}, mapArea))
}

func TestPanelRows(t *testing.T) {
	p := Panel{X: 100, Y: 50, Width: 60}
	rows := p.Rows([]string{"Ana", "Bartholomew"})
	require.Len(t, rows, 2)
	assert.Equal(t, geometry.Rect{X: 106, Y: 58, W: 21, H: 13}, rows[0].Name)
	assert.Equal(t, 87.0, rows[1].Name.Y)
	assert.Equal(t, 48.0, rows[1].Name.W, "clamped to panel width")
	assert.Equal(t, geometry.Rect{X: 100, Y: 50, W: 60, H: 58}, p.Bounds(2))
}

func TestScheduler_CoalescesWithinTick(t *testing.T) {
	var mu sync.Mutex
	drawn := 0
	s := NewScheduler(func() { mu.Lock(); drawn++; mu.Unlock() })

	assert.False(t, s.Tick(), "clean scheduler does not draw")
	for i := 0; i < 50; i++ {
		s.Request()
	}
	assert.True(t, s.Dirty())
	assert.True(t, s.Tick())
	assert.False(t, s.Tick())
	s.Request()
	assert.True(t, s.Tick())

	assert.Equal(t, 2, drawn)
	assert.Equal(t, int64(2), s.Draws())
}
