package board

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var ErrSyntax = errors.New("board: malformed document")

// Parse decodes a stored document and runs the load-time normalization pass.
// Every legacy alias is resolved here so the rest of the code only sees the
// canonical fields.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrSyntax)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	Normalize(&d)
	return &d, nil
}

// Normalize fills nil collections, NFC-normalizes names and collapses
// duplicate player names. It is idempotent.
func Normalize(d *Document) {
	if d.Buildings == nil {
		d.Buildings = []Building{}
	}
	if d.LegionData == nil {
		d.LegionData = []Legion{}
	}
	for i := range d.LegionData {
		l := &d.LegionData[i]
		l.LegionID = CleanName(l.LegionID)
		l.AllPlayers = cleanSet(l.AllPlayers)
		if l.Stages == nil {
			l.Stages = []Stage{}
		}
		for j := range l.Stages {
			s := &l.Stages[j]
			if s.Assignments == nil {
				s.Assignments = []Assignment{}
			}
			for k := range s.Assignments {
				s.Assignments[k].PlayerNames = cleanSet(s.Assignments[k].PlayerNames)
			}
		}
	}
}

// CleanName trims and NFC-normalizes a player or legion name so visually
// identical names compare equal.
func CleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func cleanSet(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = CleanName(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (b *Building) UnmarshalJSON(data []byte) error {
	type plain Building
	var raw struct {
		plain
		ID         json.RawMessage `json:"id"`
		GridX      json.RawMessage `json:"gridX"`
		GridY      json.RawMessage `json:"gridY"`
		CoordsX    json.RawMessage `json:"coords_x"`
		CoordsY    json.RawMessage `json:"coords_y"`
		ImgScale   json.RawMessage `json:"img_scale"`
		ImgOffsetY json.RawMessage `json:"img_offset_y"`

		PointsFirstAlliance json.RawMessage `json:"points_first_alliance"`
		PointsOccAlliance   json.RawMessage `json:"points_occ_alliance"`
		PointsFirstPersonal json.RawMessage `json:"points_first_personal"`
		PointsOccPersonal   json.RawMessage `json:"points_occ_personal"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Building(raw.plain)
	b.ID = flexString(raw.ID)
	b.GridX = flexFloat(raw.GridX)
	b.GridY = flexFloat(raw.GridY)
	b.CoordsX = flexFloat(raw.CoordsX)
	b.CoordsY = flexFloat(raw.CoordsY)
	if v := flexFloat(raw.ImgScale); v != nil {
		b.ImgScale = *v
	}
	if v := flexFloat(raw.ImgOffsetY); v != nil {
		b.ImgOffsetY = *v
	}
	b.PointsFirstAlliance = flexFloat(raw.PointsFirstAlliance)
	b.PointsOccAlliance = flexFloat(raw.PointsOccAlliance)
	b.PointsFirstPersonal = flexFloat(raw.PointsFirstPersonal)
	b.PointsOccPersonal = flexFloat(raw.PointsOccPersonal)
	return nil
}

func (l *Legion) UnmarshalJSON(data []byte) error {
	type plain Legion
	var raw struct {
		plain
		LegionID json.RawMessage `json:"legion_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Legion(raw.plain)
	l.LegionID = flexString(raw.LegionID)
	return nil
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	type plain Assignment
	var raw struct {
		plain
		BuildingID json.RawMessage `json:"building_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Assignment(raw.plain)
	a.BuildingID = flexString(raw.BuildingID)
	return nil
}

// timeKeys lists every historical spelling of a stage start time, in lookup
// order.
var timeKeys = []string{
	"time_start", "start_time", "start", "starts_at", "startAt", "start_time_local",
	"startTime", "time", "time_label", "timeLabel", "duration", "duration_label",
	"durationLabel", "label_time", "when", "hour",
}

var (
	nestedTimeContainers = []string{"meta", "data", "attributes", "details"}
	nestedTimeKeys       = append(append([]string{}, timeKeys...), "label", "text")
)

func (s *Stage) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	n, err := flexInt(fields["stage_number"])
	if err != nil {
		return fmt.Errorf("stage_number: %w", err)
	}
	*s = Stage{StageNumber: n}
	if raw, ok := fields["notes"]; ok {
		s.Notes = flexString(raw)
	}
	if raw, ok := fields["assignments"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &s.Assignments); err != nil {
			return fmt.Errorf("assignments: %w", err)
		}
	}
	s.TimeStart = resolveStageTime(fields)
	return nil
}

func resolveStageTime(fields map[string]json.RawMessage) string {
	for _, k := range timeKeys {
		if raw, ok := fields[k]; ok {
			if t := normalizeTime(raw); t != "" {
				return t
			}
		}
	}
	// loosely named keys such as "Start time"
	for k, raw := range fields {
		if strings.Contains(strings.ToLower(strings.Join(strings.Fields(k), "")), "start") {
			if t := normalizeTime(raw); t != "" {
				return t
			}
		}
	}
	for _, c := range nestedTimeContainers {
		raw, ok := fields[c]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if json.Unmarshal(raw, &inner) != nil {
			continue
		}
		for _, k := range nestedTimeKeys {
			if r, ok := inner[k]; ok {
				if t := normalizeTime(r); t != "" {
					return t
				}
			}
		}
	}
	return ""
}

var (
	isoStamp   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}(:\d{2})?`)
	clockTime  = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	minuteSpan = regexp.MustCompile(`(?i)^(\d+)\s*(m|min|minutes)$`)
)

// normalizeTime turns the loose time shapes found in older documents into one
// display string: minutes become "1h 30m", ISO stamps become "HH:MM".
func normalizeTime(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return normalizeTimeString(s)
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		for _, k := range []string{"value", "text", "label"} {
			if v, ok := obj[k]; ok {
				if t := normalizeTime(v); t != "" {
					return t
				}
			}
		}
		return ""
	case '[', 't', 'f':
		return ""
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return ""
	}
	mins := int(math.Round(f))
	if mins <= 0 {
		return ""
	}
	if mins >= 60 {
		h, m := mins/60, mins%60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", mins)
}

func normalizeTimeString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m := isoStamp.FindString(s); m != "" {
		layout := "2006-01-02T15:04"
		if len(m) > 16 {
			layout = "2006-01-02T15:04:05"
		}
		if t, err := time.Parse(layout, strings.Replace(m, " ", "T", 1)); err == nil {
			return t.Format("15:04")
		}
	}
	if clockTime.MatchString(s) {
		return s
	}
	if m := minuteSpan.FindStringSubmatch(s); m != nil {
		return m[1] + "m"
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	return string(raw)
}

// flexFloat accepts a number, a numeric string, "" or null. Anything that is
// not a usable number reads as absent.
func flexFloat(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(flexString(raw))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func flexInt(raw json.RawMessage) (int, error) {
	f := flexFloat(raw)
	if f == nil {
		return 0, errors.New("missing or not a number")
	}
	if *f != math.Trunc(*f) {
		return 0, fmt.Errorf("not an integer: %v", *f)
	}
	return int(*f), nil
}
