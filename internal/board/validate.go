package board

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValidationError is a document the store must refuse. Code is the machine
// readable reason sent back to writers.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CheckPayload verifies the shape of a raw write payload before it is decoded:
// buildings and legion_data must both be arrays.
func CheckPayload(raw json.RawMessage) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return invalid("invalid_json", "payload is not an object")
	}
	if !isArray(top["buildings"]) {
		return invalid("missing_buildings", "Payload must include a buildings array")
	}
	if !isArray(top["legion_data"]) {
		return invalid("missing_legion_data", "Payload must include a legion_data array")
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Validate checks the uniqueness rules of a decoded document.
func Validate(d *Document) error {
	ids := make(map[string]struct{}, len(d.Buildings))
	for _, b := range d.Buildings {
		if b.ID == "" {
			return invalid("invalid_building", "building without id")
		}
		if _, dup := ids[b.ID]; dup {
			return invalid("duplicate_building", "building %q appears twice", b.ID)
		}
		ids[b.ID] = struct{}{}
	}

	legions := make(map[string]struct{}, len(d.LegionData))
	for _, l := range d.LegionData {
		if _, dup := legions[l.LegionID]; dup {
			return invalid("duplicate_legion", "legion %q appears twice", l.LegionID)
		}
		legions[l.LegionID] = struct{}{}

		stages := make(map[int]struct{}, len(l.Stages))
		for _, s := range l.Stages {
			if _, dup := stages[s.StageNumber]; dup {
				return invalid("duplicate_stage", "legion %q has stage %d twice", l.LegionID, s.StageNumber)
			}
			stages[s.StageNumber] = struct{}{}

			slots := make(map[string]struct{}, len(s.Assignments))
			for _, a := range s.Assignments {
				if _, dup := slots[a.BuildingID]; dup {
					return invalid("duplicate_assignment",
						"legion %q stage %d assigns building %q twice", l.LegionID, s.StageNumber, a.BuildingID)
				}
				slots[a.BuildingID] = struct{}{}
			}
		}
	}
	return nil
}
