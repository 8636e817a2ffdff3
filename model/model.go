package model

import (
	"fmt"
	"math"
	"math/bits"
	"slices"
)

// Choice describes one alternative of the model.
type Choice struct {
	Name              string
	HasWage           bool  // draws enter multiplicatively through the wage
	HasExperience     bool  // taking the choice accrues experience
	MaxExperience     int   // cap on accumulated experience
	InitialExperience []int // admissible experience levels in the first period, default {0}
}

// Restriction forbids a choice in every core state where Forbids returns true.
type Restriction struct {
	Choice  int
	Forbids func(s State) bool
}

// Filter removes core states for which Drops returns true.
type Filter struct {
	Name  string
	Drops func(s State) bool
}

// Observable is a time-invariant observed characteristic with Levels values.
type Observable struct {
	Name   string
	Levels int
}

// ExogenousProcess is a Markov process orthogonal to the core state.
// Transition[i][j] is the probability of moving from level i to level j.
type ExogenousProcess struct {
	Name       string
	Levels     int
	Transition [][]float64
}

// DenseRestriction forbids a choice for dense covariates where Forbids returns true.
type DenseRestriction struct {
	Choice  int
	Forbids func(covariates []int) bool
}

// Spec is the raw model description handed to New.
type Spec struct {
	Choices              []Choice
	NPeriods             int
	NLaggedChoices       int
	InitialLaggedChoices []int // choice codes admissible in lag slots of period 0, default all

	Restrictions []Restriction
	Filters      []Filter

	Observables        []Observable
	NTypes             int
	ExogenousProcesses []ExogenousProcess
	DenseRestrictions  []DenseRestriction
}

// Model is the validated, immutable configuration record. All derived
// quantities are computed once in New.
type Model struct {
	spec Spec

	nChoices        int
	expChoices      []int // choice codes accruing experience, in choice order
	expSlot         []int // choice code -> experience slot or -1
	initialLagged   []int
	initialExp      [][]int // per experience slot
	wageMask        []bool
	domain          []int // exclusive upper bound per core coordinate
	denseRadix      []int
	denseColumns    []string
	nDense          int
	exogenousOffset int
}

// New validates spec and derives the immutable model.
func New(spec Spec) (*Model, error) {
	if len(spec.Choices) == 0 {
		return nil, &ConfigError{Field: "choices", Reason: "at least one choice is required"}
	}
	if len(spec.Choices) > MaxChoices {
		return nil, &ConfigError{Field: "choices", Reason: fmt.Sprintf("at most %d choices are supported, got %d", MaxChoices, len(spec.Choices))}
	}
	if spec.NPeriods <= 0 {
		return nil, &ConfigError{Field: "n_periods", Reason: fmt.Sprintf("must be positive, got %d", spec.NPeriods)}
	}
	if spec.NLaggedChoices < 0 {
		return nil, &ConfigError{Field: "n_lagged_choices", Reason: fmt.Sprintf("must be non-negative, got %d", spec.NLaggedChoices)}
	}

	spec = cloneSpec(spec)
	m := &Model{
		spec:     spec,
		nChoices: len(spec.Choices),
		expSlot:  make([]int, len(spec.Choices)),
		wageMask: make([]bool, len(spec.Choices)),
	}

	names := make(map[string]struct{}, m.nChoices)
	for i, c := range spec.Choices {
		if c.Name == "" {
			return nil, &ConfigError{Field: "choices", Reason: fmt.Sprintf("choice %d has no name", i)}
		}
		if _, dup := names[c.Name]; dup {
			return nil, &ConfigError{Field: "choices", Reason: fmt.Sprintf("duplicate choice %q", c.Name)}
		}
		names[c.Name] = struct{}{}

		m.wageMask[i] = c.HasWage
		m.expSlot[i] = -1
		if !c.HasExperience {
			continue
		}
		if c.MaxExperience <= 0 {
			return nil, &ConfigError{Field: "max_experience", Reason: fmt.Sprintf("choice %q must allow positive experience, got %d", c.Name, c.MaxExperience)}
		}
		initial := c.InitialExperience
		if len(initial) == 0 {
			initial = []int{0}
		}
		for j, e := range initial {
			if e < 0 || e > c.MaxExperience {
				return nil, &ConfigError{Field: "initial_experience", Reason: fmt.Sprintf("choice %q: %d outside [0, %d]", c.Name, e, c.MaxExperience)}
			}
			if slices.Contains(initial[:j], e) {
				return nil, &ConfigError{Field: "initial_experience", Reason: fmt.Sprintf("choice %q: duplicate level %d", c.Name, e)}
			}
		}
		m.expSlot[i] = len(m.expChoices)
		m.expChoices = append(m.expChoices, i)
		m.initialExp = append(m.initialExp, append([]int(nil), initial...))
	}

	m.initialLagged = spec.InitialLaggedChoices
	if len(m.initialLagged) == 0 {
		m.initialLagged = make([]int, m.nChoices)
		for i := range m.initialLagged {
			m.initialLagged[i] = i
		}
	}
	for i, c := range m.initialLagged {
		if c < 0 || c >= m.nChoices {
			return nil, &ConfigError{Field: "initial_lagged_choices", Reason: fmt.Sprintf("unknown choice code %d", c)}
		}
		if slices.Contains(m.initialLagged[:i], c) {
			return nil, &ConfigError{Field: "initial_lagged_choices", Reason: fmt.Sprintf("duplicate choice code %d", c)}
		}
	}

	for _, r := range spec.Restrictions {
		if r.Choice < 0 || r.Choice >= m.nChoices || r.Forbids == nil {
			return nil, &ConfigError{Field: "restrictions", Reason: fmt.Sprintf("invalid restriction on choice %d", r.Choice)}
		}
	}
	for _, f := range spec.Filters {
		if f.Drops == nil {
			return nil, &ConfigError{Field: "filters", Reason: fmt.Sprintf("filter %q has no predicate", f.Name)}
		}
	}
	for _, r := range spec.DenseRestrictions {
		if r.Choice < 0 || r.Choice >= m.nChoices || r.Forbids == nil {
			return nil, &ConfigError{Field: "dense_restrictions", Reason: fmt.Sprintf("invalid restriction on choice %d", r.Choice)}
		}
	}

	// Core coordinates: period, experiences, lagged choices.
	m.domain = append(m.domain, spec.NPeriods)
	for _, c := range m.expChoices {
		m.domain = append(m.domain, spec.Choices[c].MaxExperience+1)
	}
	for i := 0; i < spec.NLaggedChoices; i++ {
		m.domain = append(m.domain, m.nChoices)
	}

	if err := m.deriveDense(); err != nil {
		return nil, err
	}

	return m, nil
}

// cloneSpec copies every slice of spec so that later writes by the caller
// cannot reach the model. Predicates are shared.
func cloneSpec(spec Spec) Spec {
	spec.Choices = slices.Clone(spec.Choices)
	for i := range spec.Choices {
		spec.Choices[i].InitialExperience = slices.Clone(spec.Choices[i].InitialExperience)
	}
	spec.InitialLaggedChoices = slices.Clone(spec.InitialLaggedChoices)
	spec.Restrictions = slices.Clone(spec.Restrictions)
	spec.Filters = slices.Clone(spec.Filters)
	spec.Observables = slices.Clone(spec.Observables)
	spec.ExogenousProcesses = cloneProcesses(spec.ExogenousProcesses)
	spec.DenseRestrictions = slices.Clone(spec.DenseRestrictions)
	return spec
}

func cloneProcesses(procs []ExogenousProcess) []ExogenousProcess {
	out := slices.Clone(procs)
	for i := range out {
		out[i].Transition = make([][]float64, len(procs[i].Transition))
		for j, row := range procs[i].Transition {
			out[i].Transition[j] = slices.Clone(row)
		}
	}
	return out
}

// deriveDense computes the mixed radix of the dense covariates in the
// column order observables, type, exogenous processes.
func (m *Model) deriveDense() error {
	for _, o := range m.spec.Observables {
		if o.Levels < 2 {
			return &ConfigError{Field: "observables", Reason: fmt.Sprintf("%q needs at least two levels, got %d", o.Name, o.Levels)}
		}
		m.denseRadix = append(m.denseRadix, o.Levels)
		m.denseColumns = append(m.denseColumns, o.Name)
	}

	if m.spec.NTypes < 0 {
		return &ConfigError{Field: "n_types", Reason: fmt.Sprintf("must be non-negative, got %d", m.spec.NTypes)}
	}
	if m.spec.NTypes >= 2 {
		m.denseRadix = append(m.denseRadix, m.spec.NTypes)
		m.denseColumns = append(m.denseColumns, "type")
	}

	m.exogenousOffset = len(m.denseRadix)
	for _, p := range m.spec.ExogenousProcesses {
		if p.Levels < 2 {
			return &ConfigError{Field: "exogenous_processes", Reason: fmt.Sprintf("%q needs at least two levels, got %d", p.Name, p.Levels)}
		}
		if len(p.Transition) != p.Levels {
			return &ConfigError{Field: "exogenous_processes", Reason: fmt.Sprintf("%q transition matrix has %d rows, want %d", p.Name, len(p.Transition), p.Levels)}
		}
		for i, row := range p.Transition {
			if len(row) != p.Levels {
				return &ConfigError{Field: "exogenous_processes", Reason: fmt.Sprintf("%q row %d has %d entries, want %d", p.Name, i, len(row), p.Levels)}
			}
			sum := 0.0
			for _, v := range row {
				if v < 0 || math.IsNaN(v) {
					return &ConfigError{Field: "exogenous_processes", Reason: fmt.Sprintf("%q row %d has invalid probability %v", p.Name, i, v)}
				}
				sum += v
			}
			if math.Abs(sum-1) > 1e-8 {
				return &ConfigError{Field: "exogenous_processes", Reason: fmt.Sprintf("%q row %d sums to %v", p.Name, i, sum)}
			}
		}
		m.denseRadix = append(m.denseRadix, p.Levels)
		m.denseColumns = append(m.denseColumns, p.Name)
	}

	m.nDense = 1
	for _, r := range m.denseRadix {
		if m.nDense > math.MaxInt32/r {
			return &ConfigError{Field: "dense", Reason: "dense covariate domain is too large"}
		}
		m.nDense *= r
	}
	return nil
}

// NChoices returns the number of alternatives.
func (m *Model) NChoices() int { return m.nChoices }

// Choice returns the description of choice i.
func (m *Model) Choice(i int) Choice {
	c := m.spec.Choices[i]
	c.InitialExperience = slices.Clone(c.InitialExperience)
	return c
}

// NPeriods returns the horizon.
func (m *Model) NPeriods() int { return m.spec.NPeriods }

// NLaggedChoices returns the length of the lagged-choice history.
func (m *Model) NLaggedChoices() int { return m.spec.NLaggedChoices }

// NExperience returns the number of choices accruing experience.
func (m *Model) NExperience() int { return len(m.expChoices) }

// ExperienceChoice returns the choice code of experience slot k.
func (m *Model) ExperienceChoice(k int) int { return m.expChoices[k] }

// ExperienceSlot returns the experience slot of a choice or -1.
func (m *Model) ExperienceSlot(choice int) int { return m.expSlot[choice] }

// InitialExperience returns the starting levels of experience slot k.
func (m *Model) InitialExperience(k int) []int { return slices.Clone(m.initialExp[k]) }

// InitialLaggedChoices returns the codes admissible in lag slots of period 0.
func (m *Model) InitialLaggedChoices() []int { return slices.Clone(m.initialLagged) }

// WageMask reports for every choice whether it carries a wage.
func (m *Model) WageMask() []bool { return slices.Clone(m.wageMask) }

// Domain returns the exclusive upper bound of every core coordinate in the
// order period, experiences, lagged choices.
func (m *Model) Domain() []int { return slices.Clone(m.domain) }

// CoordsLen is the number of core coordinates of a state.
func (m *Model) CoordsLen() int { return len(m.domain) }

// NDense returns the number of dense covariate combinations.
func (m *Model) NDense() int { return m.nDense }

// DenseRadix returns the number of levels of every dense column.
func (m *Model) DenseRadix() []int { return slices.Clone(m.denseRadix) }

// DenseColumns returns the dense column names.
func (m *Model) DenseColumns() []string { return slices.Clone(m.denseColumns) }

// ExogenousProcesses returns the exogenous processes; their columns are the
// last ones of the dense covariates.
func (m *Model) ExogenousProcesses() []ExogenousProcess { return cloneProcesses(m.spec.ExogenousProcesses) }

// ExogenousOffset is the position of the first exogenous column.
func (m *Model) ExogenousOffset() int { return m.exogenousOffset }

// FullChoiceSet returns the set containing every choice.
func (m *Model) FullChoiceSet() ChoiceSet { return FullChoiceSet(m.nChoices) }

// AdmissibleChoices computes the core choice set of a state: choices at
// their experience cap and restricted choices are removed.
func (m *Model) AdmissibleChoices(s State) ChoiceSet {
	cs := m.FullChoiceSet()
	for k, c := range m.expChoices {
		if s.Experience[k] >= m.spec.Choices[c].MaxExperience {
			cs = cs.Without(c)
		}
	}
	for _, r := range m.spec.Restrictions {
		if cs.Has(r.Choice) && r.Forbids(s) {
			cs = cs.Without(r.Choice)
		}
	}
	return cs
}

// DenseChoiceSet returns the choices allowed by the dense restrictions.
func (m *Model) DenseChoiceSet(covariates []int) ChoiceSet {
	cs := m.FullChoiceSet()
	for _, r := range m.spec.DenseRestrictions {
		if r.Forbids(covariates) {
			cs = cs.Without(r.Choice)
		}
	}
	return cs
}

// Filtered reports whether any filter drops the state.
func (m *Model) Filtered(s State) bool {
	for _, f := range m.spec.Filters {
		if f.Drops(s) {
			return true
		}
	}
	return false
}

// CoordsBits returns the number of bits needed to pack a core coordinate
// tuple.
func (m *Model) CoordsBits() int {
	total := 0
	for _, d := range m.domain {
		total += bits.Len(uint(d - 1))
	}
	return total
}
