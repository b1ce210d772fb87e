package importer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// AssignmentRecords flattens every assignment into export rows, header first.
func AssignmentRecords(d *board.Document) [][]string {
	out := [][]string{AssignmentHeader}
	for _, l := range d.LegionData {
		for _, s := range l.Stages {
			for _, a := range s.Assignments {
				for _, p := range a.PlayerNames {
					out = append(out, []string{p, l.LegionID, strconv.Itoa(s.StageNumber), a.BuildingID})
				}
			}
		}
	}
	return out
}

// RosterRecords lists every legion member, header first.
func RosterRecords(d *board.Document) [][]string {
	out := [][]string{RosterHeader}
	for _, l := range d.LegionData {
		for _, p := range l.AllPlayers {
			out = append(out, []string{l.LegionID, p})
		}
	}
	return out
}

// WriteCSV renders records with every cell quoted, one row per line.
func WriteCSV(records [][]string) []byte {
	var buf bytes.Buffer
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte('\n')
		}
		for j, cell := range rec {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			buf.WriteByte('"')
		}
	}
	return buf.Bytes()
}

// WriteXLSX renders records into the first sheet of a new workbook.
func WriteXLSX(records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
