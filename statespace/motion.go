package statespace

import "github.com/n0madic/go-discrete-choice/model"

// LawOfMotion returns the state reached from s by taking choice: experience
// of the chosen alternative grows by one if it accrues experience, the
// lagged choices shift with choice in front and the period advances.
func LawOfMotion(m *model.Model, s model.State, choice int) model.State {
	ns := s.Clone()
	if k := m.ExperienceSlot(choice); k >= 0 {
		ns.Experience[k]++
	}
	if n := len(ns.Lagged); n > 0 {
		copy(ns.Lagged[1:], ns.Lagged[:n-1])
		ns.Lagged[0] = choice
	}
	ns.Period++
	return ns
}

// NextCoords applies the law of motion to core coordinates without
// allocating; dst must not alias coords.
func NextCoords(m *model.Model, coords []int, choice int, dst []int) []int {
	dst = append(dst[:0], coords...)
	dst[0]++
	if k := m.ExperienceSlot(choice); k >= 0 {
		dst[1+k]++
	}
	if n := m.NLaggedChoices(); n > 0 {
		lag := 1 + m.NExperience()
		copy(dst[lag+1:lag+n], coords[lag:lag+n-1])
		dst[lag] = choice
	}
	return dst
}
