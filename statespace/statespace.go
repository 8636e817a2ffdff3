package statespace

import (
	"fmt"
	"log/slog"

	"github.com/n0madic/go-discrete-choice/indexer"
	"github.com/n0madic/go-discrete-choice/model"
)

// CoreGroup holds the states of one period sharing an admissible choice set.
// States are stored in core index order.
type CoreGroup struct {
	Key       int32
	Period    int
	ChoiceSet model.ChoiceSet
	States    []model.State
}

// StateSpace is the immutable set of reachable core states.
type StateSpace struct {
	model   *model.Model
	indexer *indexer.Indexer
	groups  []CoreGroup
	periods [][]int32 // period -> core keys
}

type config struct {
	logger *slog.Logger
}

// Option configures Build.
type Option func(*config)

// WithLogger sets the logger used during enumeration.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

type groupID struct {
	period int
	cs     model.ChoiceSet
}

// Build enumerates every state reachable from the initial conditions of m.
func Build(m *model.Model, opts ...Option) (*StateSpace, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ix, err := indexer.New(m.Domain())
	if err != nil {
		return nil, err
	}

	ss := &StateSpace{
		model:   m,
		indexer: ix,
		periods: make([][]int32, m.NPeriods()),
	}

	current := initialStates(m)
	if len(current) == 0 {
		return nil, model.ErrNoInitialStates
	}

	groupOf := make(map[groupID]int32)
	coords := make([]int, 0, m.CoordsLen())
	for t := 0; t < m.NPeriods(); t++ {
		var next []model.State
		seen := make(map[uint64]struct{})

		for _, s := range current {
			cs := m.AdmissibleChoices(s)

			var successors []model.State
			if t+1 < m.NPeriods() {
				for _, c := range cs.Indices() {
					ns := LawOfMotion(m, s, c)
					// A choice leading into a filtered state is not admissible.
					if m.Filtered(ns) {
						cs = cs.Without(c)
						continue
					}
					successors = append(successors, ns)
				}
			}

			id := groupID{period: t, cs: cs}
			key, ok := groupOf[id]
			if !ok {
				key = int32(len(ss.groups))
				groupOf[id] = key
				ss.groups = append(ss.groups, CoreGroup{Key: key, Period: t, ChoiceSet: cs})
				ss.periods[t] = append(ss.periods[t], key)
			}

			if _, inserted := ix.Insert(s.Coords(coords), key); !inserted {
				return nil, fmt.Errorf("state %v enumerated twice", s)
			}
			ss.groups[key].States = append(ss.groups[key].States, s)

			for _, ns := range successors {
				packed := ix.Pack(ns.Coords(coords))
				if _, dup := seen[packed]; dup {
					continue
				}
				seen[packed] = struct{}{}
				next = append(next, ns)
			}
		}

		cfg.logger.Debug("enumerated period",
			slog.Int("period", t),
			slog.Int("states", len(current)),
			slog.Int("core_keys", len(ss.periods[t])))
		current = next
	}

	ix.Freeze()
	return ss, nil
}

// initialStates returns the unfiltered first-period states: the cartesian
// product of initial experience levels and initial lagged choices.
func initialStates(m *model.Model) []model.State {
	nExp, nLag := m.NExperience(), m.NLaggedChoices()
	exp := make([][]int, nExp)
	lagged := m.InitialLaggedChoices()
	radix := make([]int, 0, nExp+nLag)
	for k := range exp {
		exp[k] = m.InitialExperience(k)
		radix = append(radix, len(exp[k]))
	}
	for i := 0; i < nLag; i++ {
		radix = append(radix, len(lagged))
	}

	var states []model.State
	digits := make([]int, len(radix))
	for {
		s := model.State{Period: 0}
		if nExp > 0 {
			s.Experience = make([]int, nExp)
			for k := 0; k < nExp; k++ {
				s.Experience[k] = exp[k][digits[k]]
			}
		}
		if nLag > 0 {
			s.Lagged = make([]int, nLag)
			for i := 0; i < nLag; i++ {
				s.Lagged[i] = lagged[digits[nExp+i]]
			}
		}
		if !m.Filtered(s) {
			states = append(states, s)
		}

		// Odometer increment, last digit fastest.
		i := len(digits) - 1
		for ; i >= 0; i-- {
			digits[i]++
			if digits[i] < radix[i] {
				break
			}
			digits[i] = 0
		}
		if i < 0 {
			return states
		}
	}
}

// Model returns the model the space was built for.
func (ss *StateSpace) Model() *model.Model { return ss.model }

// Indexer returns the frozen indexer.
func (ss *StateSpace) Indexer() *indexer.Indexer { return ss.indexer }

// NPeriods returns the horizon.
func (ss *StateSpace) NPeriods() int { return len(ss.periods) }

// Groups returns all core groups indexed by core key.
func (ss *StateSpace) Groups() []CoreGroup { return ss.groups }

// Group returns the group of a core key.
func (ss *StateSpace) Group(key int32) *CoreGroup { return &ss.groups[key] }

// KeysInPeriod returns the core keys of period t in creation order.
func (ss *StateSpace) KeysInPeriod(t int) []int32 { return ss.periods[t] }

// State returns the state at pos.
func (ss *StateSpace) State(pos indexer.Position) model.State {
	return ss.groups[pos.Key].States[pos.Index]
}

// Lookup returns the position of s or indexer.Invalid.
func (ss *StateSpace) Lookup(s model.State) indexer.Position {
	return ss.indexer.Lookup(s.Coords(make([]int, 0, ss.model.CoordsLen())))
}

// NStates returns the total number of core states.
func (ss *StateSpace) NStates() int { return ss.indexer.Len() }

// NStatesInPeriod returns the number of core states of period t.
func (ss *StateSpace) NStatesInPeriod(t int) int {
	n := 0
	for _, key := range ss.periods[t] {
		n += len(ss.groups[key].States)
	}
	return n
}
