package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownAction is returned for nil actions or unrecognised type tags.
var ErrUnknownAction = errors.New("unknown action")

// Action type tags used on the wire.
const (
	ActionSetChar         = "set_char"
	ActionBackspace       = "backspace"
	ActionMove            = "move"
	ActionSetCursor       = "set_cursor"
	ActionToggleDirection = "toggle_direction"
	ActionReset           = "reset"
	ActionSetGridData     = "set_grid_data"
)

// ActionName returns the wire tag of a.
func ActionName(a Action) string {
	switch a.(type) {
	case TypeChar:
		return ActionSetChar
	case Backspace:
		return ActionBackspace
	case Move:
		return ActionMove
	case SetCursor:
		return ActionSetCursor
	case ToggleDirection:
		return ActionToggleDirection
	case Reset:
		return ActionReset
	case OverwriteGrid:
		return ActionSetGridData
	}
	return "unknown"
}

// DecodeAction parses {"type": "<tag>", ...fields} into an Action.
func DecodeAction(b []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	var (
		a   Action
		err error
	)
	switch head.Type {
	case ActionSetChar:
		a, err = decodeInto[TypeChar](b)
	case ActionBackspace:
		a = Backspace{}
	case ActionMove:
		a, err = decodeInto[Move](b)
	case ActionSetCursor:
		a, err = decodeInto[SetCursor](b)
	case ActionToggleDirection:
		a = ToggleDirection{}
	case ActionReset:
		a, err = decodeInto[Reset](b)
	case ActionSetGridData:
		a, err = decodeInto[OverwriteGrid](b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return a, nil
}

func decodeInto[T Action](b []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeAction is the inverse of DecodeAction.
func EncodeAction(a Action) ([]byte, error) {
	name := ActionName(a)
	if name == "unknown" {
		return nil, ErrUnknownAction
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(name)
	return json.Marshal(fields)
}
