package importer

import (
	"strconv"
	"strings"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// rowsFromRecords skips the header and keeps only complete rows.
func rowsFromRecords(records [][]string) *Parsed {
	out := &Parsed{Rows: []Row{}}
	if len(records) == 0 {
		return out
	}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row, ok := toRow(rec)
		if !ok {
			out.Skipped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func toRow(rec []string) (Row, bool) {
	if len(rec) < 4 {
		return Row{}, false
	}
	player := board.CleanName(rec[0])
	legion := board.CleanName(rec[1])
	stageText := strings.TrimSpace(rec[2])
	building := strings.TrimSpace(rec[3])
	if player == "" || legion == "" || stageText == "" || building == "" {
		return Row{}, false
	}
	stage, err := strconv.Atoi(stageText)
	if err != nil {
		// spreadsheets like to hand back "3.0"
		f, ferr := strconv.ParseFloat(stageText, 64)
		if ferr != nil || f != float64(int(f)) {
			return Row{}, false
		}
		stage = int(f)
	}
	if stage <= 0 {
		return Row{}, false
	}
	return Row{Player: player, LegionID: legion, Stage: stage, BuildingID: building}, true
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
