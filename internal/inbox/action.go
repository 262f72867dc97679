package inbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType names a mailbox mutation.
type ActionType string

const (
	ActionArchive     ActionType = "archive"
	ActionTrash       ActionType = "trash"
	ActionDelete      ActionType = "delete"
	ActionMarkRead    ActionType = "mark_read"
	ActionMarkUnread  ActionType = "mark_unread"
	ActionStar        ActionType = "star"
	ActionUnstar      ActionType = "unstar"
	ActionAddLabel    ActionType = "add_label"
	ActionRemoveLabel ActionType = "remove_label"
)

// ParamLabel is the params key carrying the label for label actions.
const ParamLabel = "label"

var knownActions = map[ActionType]bool{
	ActionArchive:     true,
	ActionTrash:       true,
	ActionDelete:      true,
	ActionMarkRead:    true,
	ActionMarkUnread:  true,
	ActionStar:        true,
	ActionUnstar:      true,
	ActionAddLabel:    true,
	ActionRemoveLabel: true,
}

// Action is one mutation requested by a rule. Applying the same action twice
// must succeed; Mailbox implementations own that guarantee.
type Action struct {
	Type   ActionType        `json:"type"`
	Params map[string]string `json:"params"`
}

// MarshalJSON always emits a params object so persisted rules keep a stable shape.
func (a Action) MarshalJSON() ([]byte, error) {
	type plain Action
	out := plain(a)
	if out.Params == nil {
		out.Params = map[string]string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats an empty params object as no params.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if len(out.Params) == 0 {
		out.Params = nil
	}
	*a = Action(out)
	return nil
}

// Archive and friends build parameterless actions.
func Archive() Action    { return Action{Type: ActionArchive} }
func Trash() Action      { return Action{Type: ActionTrash} }
func Delete() Action     { return Action{Type: ActionDelete} }
func MarkRead() Action   { return Action{Type: ActionMarkRead} }
func MarkUnread() Action { return Action{Type: ActionMarkUnread} }
func Star() Action       { return Action{Type: ActionStar} }
func Unstar() Action     { return Action{Type: ActionUnstar} }

// AddLabel builds an add_label action.
func AddLabel(label string) Action {
	return Action{Type: ActionAddLabel, Params: map[string]string{ParamLabel: label}}
}

// RemoveLabel builds a remove_label action.
func RemoveLabel(label string) Action {
	return Action{Type: ActionRemoveLabel, Params: map[string]string{ParamLabel: label}}
}

// Label returns the label parameter, empty for non-label actions.
func (a Action) Label() string {
	if a.Params == nil {
		return ""
	}
	return a.Params[ParamLabel]
}

// String renders the action the way reports print it.
func (a Action) String() string {
	if lbl := a.Label(); lbl != "" {
		return fmt.Sprintf("%s(%s)", a.Type, lbl)
	}
	return string(a.Type)
}

// Validate checks the action against the fixed vocabulary.
func (a Action) Validate() error {
	if !knownActions[a.Type] {
		return &ValidationError{Field: "actions.type", Reason: fmt.Sprintf("unknown action %q", a.Type)}
	}
	switch a.Type {
	case ActionAddLabel, ActionRemoveLabel:
		if strings.TrimSpace(a.Label()) == "" {
			return &ValidationError{Field: "actions.params.label", Reason: fmt.Sprintf("%s requires a label", a.Type)}
		}
	}
	return nil
}
