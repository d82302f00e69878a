package ir

import "fmt"

// Action is the minimal step that converges an entity. It is a closed set.
type Action int

const (
	NoOp Action = iota
	Create
	Update
	Delete
)

// Actions lists every action in display order.
var Actions = []Action{Create, Update, Delete, NoOp}

func (a Action) String() string {
	switch a {
	case NoOp:
		return "NOOP"
	case Create:
		return "CREATE"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction converts the String form back to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "NOOP":
		return NoOp, nil
	case "CREATE":
		return Create, nil
	case "UPDATE":
		return Update, nil
	case "DELETE":
		return Delete, nil
	default:
		return NoOp, fmt.Errorf("unknown action %q", s)
	}
}

// IsMutation reports whether the action changes remote state.
func (a Action) IsMutation() bool {
	return a != NoOp
}

// MarshalText encodes the action by name, also as a JSON map key.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (a *Action) UnmarshalText(data []byte) error {
	parsed, err := ParseAction(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
