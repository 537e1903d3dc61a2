package trade

import (
	"fmt"
	"strings"
)

// Kind selects which of a member's two lists an operation targets.
type Kind uint8

const (
	// KindWant is the list of items a member is looking for.
	KindWant Kind = iota + 1
	// KindHave is the list of items a member can give away.
	KindHave
)

// Kinds lists every valid list kind in display order.
var Kinds = []Kind{KindWant, KindHave}

// String returns the stable storage label of the kind.
func (k Kind) String() string {
	switch k {
	case KindWant:
		return "want"
	case KindHave:
		return "have"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Validate checks that the kind is one of the declared variants.
func (k Kind) Validate() error {
	switch k {
	case KindWant, KindHave:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
}

// ParseKind maps a storage label back to a kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "want":
		return KindWant, nil
	case "have":
		return KindHave, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, value)
	}
}
