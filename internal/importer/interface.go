// Package importer moves assignments in and out of spreadsheets.
//
// Rows use the column order Player Name, Legion ID, Stage Number, Building ID.
package importer

// Row is one player placed on one building in one stage.
type Row struct {
	Player     string
	LegionID   string
	Stage      int
	BuildingID string
}

// Parsed is the usable rows of a file plus how many rows were dropped for
// being short, blank or carrying a non-numeric stage.
type Parsed struct {
	Rows    []Row
	Skipped int
}

// Parser reads assignment rows from raw file bytes. The first row is always
// treated as a header.
type Parser interface {
	Parse(fileData []byte) (*Parsed, error)
}

// AssignmentHeader and RosterHeader are the first rows written on export.
var (
	AssignmentHeader = []string{"Player Name", "Legion ID", "Stage Number", "Building ID"}
	RosterHeader     = []string{"Legion ID", "Player Name"}
)
