package vm

import "strings"

// Quirks selects between the divergent historical behaviours of a few opcodes.
type Quirks struct {
	// ShiftIgnoresVY makes 8XY6 and 8XYE operate on VX alone.
	ShiftIgnoresVY bool

	// NoIndexIncrement leaves I untouched after FX55 and FX65.
	NoIndexIncrement bool

	// JumpUsesVX makes BNNN add VX instead of V0.
	JumpUsesVX bool
}

// String lists the enabled quirks, e.g. "shift,jump".
func (q Quirks) String() string {
	var names []string
	if q.ShiftIgnoresVY {
		names = append(names, "shift")
	}
	if q.NoIndexIncrement {
		names = append(names, "no-increment")
	}
	if q.JumpUsesVX {
		names = append(names, "jump")
	}

	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
