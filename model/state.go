package model

import (
	"fmt"
	"strings"
)

// State is a core state: period, experience per experience slot and the
// lagged choices, most recent first.
type State struct {
	Period     int
	Experience []int
	Lagged     []int
}

// Coords appends the core coordinates of s to dst.
func (s State) Coords(dst []int) []int {
	dst = append(dst[:0], s.Period)
	dst = append(dst, s.Experience...)
	dst = append(dst, s.Lagged...)
	return dst
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		Period:     s.Period,
		Experience: append([]int(nil), s.Experience...),
		Lagged:     append([]int(nil), s.Lagged...),
	}
}

func (s State) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "period=%d exp=%v", s.Period, s.Experience)
	if len(s.Lagged) > 0 {
		fmt.Fprintf(&b, " lagged=%v", s.Lagged)
	}
	return b.String()
}

// StateFromCoords rebuilds a state from its core coordinates.
func (m *Model) StateFromCoords(coords []int) State {
	k := len(m.expChoices)
	s := State{Period: coords[0]}
	if k > 0 {
		s.Experience = append([]int(nil), coords[1:1+k]...)
	}
	if m.spec.NLaggedChoices > 0 {
		s.Lagged = append([]int(nil), coords[1+k:1+k+m.spec.NLaggedChoices]...)
	}
	return s
}
