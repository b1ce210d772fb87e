package engine

import (
	"slices"
	"strings"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func CountEvents(events []Event, eventType EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func event(t EventType, l *board.Legion, cmd Command) Event {
	return Event{Type: t, LegionID: l.LegionID, Stage: cmd.Stage, BuildingID: cmd.BuildingID, Player: cmd.Player}
}

func removeName(names []string, name string) []string {
	return slices.DeleteFunc(names, func(n string) bool { return n == name })
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = board.CleanName(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func trimmed(s string) string { return strings.TrimSpace(s) }
