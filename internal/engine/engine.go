package engine

import (
	"errors"
	"slices"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

var ErrUnknownLegion = errors.New("unknown legion")
var ErrUnknownStage = errors.New("unknown stage")
var ErrLegionExists = errors.New("legion already exists")
var ErrStageExists = errors.New("stage already exists")
var ErrInvalidStage = errors.New("stage number must be positive")
var ErrEmptyPlayer = errors.New("player name required")
var ErrEmptyBuilding = errors.New("building id required")
var ErrEmptyLegion = errors.New("legion id required")
var ErrDuplicateBuilding = errors.New("building assigned twice in one stage")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdAssign         CommandType = "Assign"
	CmdUnassign       CommandType = "Unassign"
	CmdSetAssignments CommandType = "SetAssignments"
	CmdAddLegion      CommandType = "AddLegion"
	CmdAddStage       CommandType = "AddStage"
	CmdEditStage      CommandType = "EditStage"
	CmdDeleteStage    CommandType = "DeleteStage"
	CmdAddPlayer      CommandType = "AddPlayer"
	CmdRemovePlayer   CommandType = "RemovePlayer"
)

/*
	CmdAssign         -> [EvtStageCreated] -> [EvtAssignmentCreated] -> EvtPlayerAssigned
	CmdUnassign       -> EvtPlayerUnassigned -> [EvtAssignmentPruned]
	CmdSetAssignments -> EvtAssignmentsReplaced
	CmdAddLegion      -> EvtLegionCreated
	CmdAddStage       -> EvtStageCreated
	CmdEditStage      -> EvtStageEdited
	CmdDeleteStage    -> EvtStageDeleted
	CmdAddPlayer      -> EvtPlayerAdded
	CmdRemovePlayer   -> EvtPlayerRemoved

	A command that would not change anything (assigning someone already there,
	adding a player already on the roster) succeeds with no events.
*/

type Command struct {
	Type        CommandType
	LegionID    string
	Stage       int
	BuildingID  string
	Player      string
	TimeStart   string
	Notes       string
	Assignments []board.Assignment
}

type EventType string

const (
	EvtLegionCreated       EventType = "LegionCreated"
	EvtStageCreated        EventType = "StageCreated"
	EvtStageEdited         EventType = "StageEdited"
	EvtStageDeleted        EventType = "StageDeleted"
	EvtAssignmentCreated   EventType = "AssignmentCreated"
	EvtAssignmentPruned    EventType = "AssignmentPruned"
	EvtAssignmentsReplaced EventType = "AssignmentsReplaced"
	EvtPlayerAssigned      EventType = "PlayerAssigned"
	EvtPlayerUnassigned    EventType = "PlayerUnassigned"
	EvtPlayerAdded         EventType = "PlayerAdded"
	EvtPlayerRemoved       EventType = "PlayerRemoved"
)

type Event struct {
	Type       EventType
	LegionID   string
	Stage      int
	BuildingID string
	Player     string
}

// legionCommands operate inside an existing legion.
var legionCommands = map[CommandType]bool{
	CmdAssign: true, CmdUnassign: true, CmdSetAssignments: true,
	CmdAddStage: true, CmdEditStage: true, CmdDeleteStage: true,
	CmdAddPlayer: true, CmdRemovePlayer: true,
}

// PrunePolicy decides what happens to an assignment whose last player is
// removed.
type PrunePolicy int

const (
	// KeepEmpty leaves the empty assignment in place, holding the building slot.
	KeepEmpty PrunePolicy = iota
	// PruneEmpty deletes the assignment once it has no players.
	PruneEmpty
)

// Model applies commands under a fixed policy. The zero value keeps emptied
// assignments.
type Model struct {
	Prune PrunePolicy
}

// Apply runs cmd with the default model.
func Apply(d *board.Document, cmd Command) ([]Event, *board.Document, error) {
	return Model{}.Apply(d, cmd)
}

// Apply returns the events and the resulting document. On error the input
// document is returned untouched. The input is never mutated.
func (m Model) Apply(d *board.Document, cmd Command) ([]Event, *board.Document, error) {
	if d == nil {
		d = board.Empty()
	}
	cmd.LegionID = board.CleanName(cmd.LegionID)
	cmd.Player = board.CleanName(cmd.Player)

	if cmd.Type == CmdAddLegion {
		return addLegion(d, cmd)
	}
	if !legionCommands[cmd.Type] {
		return nil, d, ErrUnsupportedCommand
	}

	if _, ok := d.Legion(cmd.LegionID); !ok {
		return nil, d, ErrUnknownLegion
	}

	newDoc := d.Clone()
	legion, _ := newDoc.Legion(cmd.LegionID)

	var events []Event
	var err error
	switch cmd.Type {
	case CmdAssign:
		events, err = assign(legion, cmd)
	case CmdUnassign:
		events, err = m.unassign(legion, cmd)
	case CmdSetAssignments:
		events, err = setAssignments(legion, cmd)
	case CmdAddStage:
		events, err = addStage(legion, cmd)
	case CmdEditStage:
		events, err = editStage(legion, cmd)
	case CmdDeleteStage:
		events, err = deleteStage(legion, cmd)
	case CmdAddPlayer:
		events, err = addPlayer(legion, cmd)
	case CmdRemovePlayer:
		events, err = removePlayer(legion, cmd)
	}
	if err != nil {
		return nil, d, err
	}
	if len(events) == 0 {
		// nothing changed, hand back the original so callers can skip work
		return nil, d, nil
	}
	return events, newDoc, nil
}

func addLegion(d *board.Document, cmd Command) ([]Event, *board.Document, error) {
	if cmd.LegionID == "" {
		return nil, d, ErrEmptyLegion
	}
	if _, ok := d.Legion(cmd.LegionID); ok {
		return nil, d, ErrLegionExists
	}
	newDoc := d.Clone()
	newDoc.LegionData = append(newDoc.LegionData, board.Legion{
		LegionID:   cmd.LegionID,
		AllPlayers: []string{},
		Stages:     []board.Stage{},
	})
	return []Event{{Type: EvtLegionCreated, LegionID: cmd.LegionID}}, newDoc, nil
}

func assign(l *board.Legion, cmd Command) ([]Event, error) {
	if cmd.Player == "" {
		return nil, ErrEmptyPlayer
	}
	if cmd.BuildingID == "" {
		return nil, ErrEmptyBuilding
	}
	if cmd.Stage <= 0 {
		return nil, ErrInvalidStage
	}

	var events []Event
	stage, ok := l.Stage(cmd.Stage)
	if !ok {
		l.Stages = append(l.Stages, board.Stage{StageNumber: cmd.Stage, Assignments: []board.Assignment{}})
		stage = &l.Stages[len(l.Stages)-1]
		events = append(events, event(EvtStageCreated, l, cmd))
	}

	asg, ok := stage.Assignment(cmd.BuildingID)
	if !ok {
		stage.Assignments = append(stage.Assignments, board.Assignment{BuildingID: cmd.BuildingID, PlayerNames: []string{}})
		asg = &stage.Assignments[len(stage.Assignments)-1]
		events = append(events, event(EvtAssignmentCreated, l, cmd))
	}

	if !asg.Has(cmd.Player) {
		asg.PlayerNames = append(asg.PlayerNames, cmd.Player)
		events = append(events, event(EvtPlayerAssigned, l, cmd))
	}
	return events, nil
}

func (m Model) unassign(l *board.Legion, cmd Command) ([]Event, error) {
	stage, ok := l.Stage(cmd.Stage)
	if !ok {
		return nil, nil
	}
	asg, ok := stage.Assignment(cmd.BuildingID)
	if !ok || !asg.Has(cmd.Player) {
		return nil, nil
	}

	asg.PlayerNames = removeName(asg.PlayerNames, cmd.Player)
	events := []Event{event(EvtPlayerUnassigned, l, cmd)}

	if m.Prune == PruneEmpty && len(asg.PlayerNames) == 0 {
		stage.Assignments = slices.DeleteFunc(stage.Assignments, func(a board.Assignment) bool {
			return a.BuildingID == cmd.BuildingID
		})
		events = append(events, event(EvtAssignmentPruned, l, cmd))
	}
	return events, nil
}

func setAssignments(l *board.Legion, cmd Command) ([]Event, error) {
	stage, ok := l.Stage(cmd.Stage)
	if !ok {
		return nil, ErrUnknownStage
	}
	next := make([]board.Assignment, 0, len(cmd.Assignments))
	seen := map[string]bool{}
	for _, a := range cmd.Assignments {
		if a.BuildingID == "" {
			// rows without a building are dropped, same as the editor form
			continue
		}
		if seen[a.BuildingID] {
			return nil, ErrDuplicateBuilding
		}
		seen[a.BuildingID] = true
		next = append(next, board.Assignment{BuildingID: a.BuildingID, PlayerNames: cleanNames(a.PlayerNames)})
	}
	stage.Assignments = next
	return []Event{event(EvtAssignmentsReplaced, l, cmd)}, nil
}

func addStage(l *board.Legion, cmd Command) ([]Event, error) {
	if cmd.Stage <= 0 {
		return nil, ErrInvalidStage
	}
	if _, ok := l.Stage(cmd.Stage); ok {
		return nil, ErrStageExists
	}
	l.Stages = append(l.Stages, board.Stage{
		StageNumber: cmd.Stage,
		TimeStart:   trimmed(cmd.TimeStart),
		Notes:       cmd.Notes,
		Assignments: []board.Assignment{},
	})
	return []Event{event(EvtStageCreated, l, cmd)}, nil
}

func editStage(l *board.Legion, cmd Command) ([]Event, error) {
	stage, ok := l.Stage(cmd.Stage)
	if !ok {
		return nil, ErrUnknownStage
	}
	if stage.TimeStart == trimmed(cmd.TimeStart) && stage.Notes == cmd.Notes {
		return nil, nil
	}
	stage.TimeStart = trimmed(cmd.TimeStart)
	stage.Notes = cmd.Notes
	return []Event{event(EvtStageEdited, l, cmd)}, nil
}

func deleteStage(l *board.Legion, cmd Command) ([]Event, error) {
	if _, ok := l.Stage(cmd.Stage); !ok {
		return nil, ErrUnknownStage
	}
	l.Stages = slices.DeleteFunc(l.Stages, func(s board.Stage) bool { return s.StageNumber == cmd.Stage })
	return []Event{event(EvtStageDeleted, l, cmd)}, nil
}

func addPlayer(l *board.Legion, cmd Command) ([]Event, error) {
	if cmd.Player == "" {
		return nil, ErrEmptyPlayer
	}
	if l.HasPlayer(cmd.Player) {
		return nil, nil
	}
	l.AllPlayers = append(l.AllPlayers, cmd.Player)
	return []Event{event(EvtPlayerAdded, l, cmd)}, nil
}

// removePlayer only touches the roster. Existing assignments keep the name
// until they are edited.
func removePlayer(l *board.Legion, cmd Command) ([]Event, error) {
	if !l.HasPlayer(cmd.Player) {
		return nil, nil
	}
	l.AllPlayers = removeName(l.AllPlayers, cmd.Player)
	return []Event{event(EvtPlayerRemoved, l, cmd)}, nil
}
