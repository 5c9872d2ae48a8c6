package model

import (
	"fmt"
	"strings"
)

// Category is a capability axis a candidate is rated on.
// Overall is derived from the votable categories and is never a voting target.
type Category uint8

const (
	Overall Category = iota
	Agentic
	Planning
	Debugging
	Refactoring
	Explaining
)

// Votable lists the categories a vote may target, in canonical order.
var Votable = [...]Category{Agentic, Planning, Debugging, Refactoring, Explaining}

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case Overall:
		return "overall"
	case Agentic:
		return "agentic"
	case Planning:
		return "planning"
	case Debugging:
		return "debugging"
	case Refactoring:
		return "refactoring"
	case Explaining:
		return "explaining"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// IsVotable reports whether c is one of the five votable categories.
func (c Category) IsVotable() bool {
	return c >= Agentic && c <= Explaining
}

// ParseCategory maps a wire name to a Category. "overall" parses successfully;
// callers that need a voting target must also check IsVotable.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overall":
		return Overall, nil
	case "agentic":
		return Agentic, nil
	case "planning":
		return Planning, nil
	case "debugging":
		return Debugging, nil
	case "refactoring":
		return Refactoring, nil
	case "explaining":
		return Explaining, nil
	default:
		return Overall, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if c > Explaining {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
