package model

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MaxChoices is the largest number of alternatives a ChoiceSet can hold.
const MaxChoices = 64

// ChoiceSet is a bit set of admissible choices; bit i stands for choice i.
type ChoiceSet uint64

// FullChoiceSet returns the set of the first n choices.
func FullChoiceSet(n int) ChoiceSet {
	if n >= MaxChoices {
		return ^ChoiceSet(0)
	}
	return ChoiceSet(1)<<uint(n) - 1
}

// ChoiceSetOf builds a set from a boolean mask.
func ChoiceSetOf(mask []bool) ChoiceSet {
	var cs ChoiceSet
	for i, ok := range mask {
		if ok {
			cs |= 1 << uint(i)
		}
	}
	return cs
}

// Has reports whether choice i is admissible.
func (cs ChoiceSet) Has(i int) bool { return cs&(1<<uint(i)) != 0 }

// With adds choice i.
func (cs ChoiceSet) With(i int) ChoiceSet { return cs | 1<<uint(i) }

// Without removes choice i.
func (cs ChoiceSet) Without(i int) ChoiceSet { return cs &^ (1 << uint(i)) }

// And intersects two sets.
func (cs ChoiceSet) And(other ChoiceSet) ChoiceSet { return cs & other }

// Len returns the number of admissible choices.
func (cs ChoiceSet) Len() int { return bits.OnesCount64(uint64(cs)) }

// Empty reports whether no choice is admissible.
func (cs ChoiceSet) Empty() bool { return cs == 0 }

// Indices returns the admissible choice codes in enumeration order.
func (cs ChoiceSet) Indices() []int {
	out := make([]int, 0, cs.Len())
	for rest := uint64(cs); rest != 0; rest &= rest - 1 {
		out = append(out, bits.TrailingZeros64(rest))
	}
	return out
}

// Mask expands the set to a boolean mask over n choices.
func (cs ChoiceSet) Mask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = cs.Has(i)
	}
	return mask
}

// Format renders the set as a bit string in choice order, e.g. "101".
func (cs ChoiceSet) Format(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if cs.Has(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParseChoiceSet reads a bit string produced by Format.
func ParseChoiceSet(s string) (ChoiceSet, error) {
	if len(s) == 0 || len(s) > MaxChoices {
		return 0, fmt.Errorf("invalid choice set %q", s)
	}
	var cs ChoiceSet
	for i, r := range s {
		switch r {
		case '1':
			cs = cs.With(i)
		case '0':
		default:
			return 0, fmt.Errorf("invalid choice set %q", s)
		}
	}
	return cs, nil
}

// ComplexIndex is the external identity of one unit of persisted solver
// output: a period, the core choice set and optionally a dense index.
type ComplexIndex struct {
	Period    int
	ChoiceSet ChoiceSet
	NChoices  int
	Dense     int
	HasDense  bool
}

// NewComplexIndex builds a two-component index, or a three-component one
// when a dense index is given. Any other shape is unsupported.
func NewComplexIndex(period int, cs ChoiceSet, nChoices int, dense ...int) (ComplexIndex, error) {
	ci := ComplexIndex{Period: period, ChoiceSet: cs, NChoices: nChoices}
	switch len(dense) {
	case 0:
	case 1:
		ci.Dense, ci.HasDense = dense[0], true
	default:
		return ComplexIndex{}, fmt.Errorf("%w: %d components", ErrUnsupportedComplexIndex, 2+len(dense))
	}
	return ci, nil
}

// Name derives the deterministic object name for topic.
func (c ComplexIndex) Name(topic string) string {
	name := topic + "_" + strconv.Itoa(c.Period) + "_" + c.ChoiceSet.Format(c.NChoices)
	if c.HasDense {
		name += "_" + strconv.Itoa(c.Dense)
	}
	return name
}

func (c ComplexIndex) String() string { return c.Name("complex") }

// ParseComplexIndex inverts Name for a known topic.
func ParseComplexIndex(topic, name string) (ComplexIndex, error) {
	rest, ok := strings.CutPrefix(name, topic+"_")
	if !ok {
		return ComplexIndex{}, fmt.Errorf("name %q does not belong to topic %q", name, topic)
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 && len(parts) != 3 {
		return ComplexIndex{}, fmt.Errorf("%w: %d components in %q", ErrUnsupportedComplexIndex, len(parts), name)
	}
	period, err := strconv.Atoi(parts[0])
	if err != nil {
		return ComplexIndex{}, fmt.Errorf("parse period of %q: %w", name, err)
	}
	cs, err := ParseChoiceSet(parts[1])
	if err != nil {
		return ComplexIndex{}, err
	}
	if len(parts) == 2 {
		return NewComplexIndex(period, cs, len(parts[1]))
	}
	dense, err := strconv.Atoi(parts[2])
	if err != nil {
		return ComplexIndex{}, fmt.Errorf("parse dense index of %q: %w", name, err)
	}
	return NewComplexIndex(period, cs, len(parts[1]), dense)
}
