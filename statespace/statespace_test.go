package statespace

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-discrete-choice/indexer"
	"github.com/n0madic/go-discrete-choice/model"
)

// cappedCompositions counts the vectors e with sum t and 0 <= e_i <= caps[i].
func cappedCompositions(t int, caps []int) int {
	if len(caps) == 0 {
		if t == 0 {
			return 1
		}
		return 0
	}
	n := 0
	for e := 0; e <= caps[0] && e <= t; e++ {
		n += cappedCompositions(t-e, caps[1:])
	}
	return n
}

func experienceModel(t *testing.T, periods int, caps []int) *model.Model {
	t.Helper()
	spec := model.Spec{NPeriods: periods}
	for i, c := range caps {
		spec.Choices = append(spec.Choices, model.Choice{
			Name:          string(rune('a' + i)),
			HasWage:       i == 0,
			HasExperience: true,
			MaxExperience: c,
		})
	}
	m, err := model.New(spec)
	require.NoError(t, err)
	return m
}

func TestStateSpaceSizeMatchesCappedCompositions(t *testing.T) {
	tests := []struct {
		name    string
		periods int
		caps    []int
	}{
		{name: "two choices uncapped", periods: 5, caps: []int{10, 10}},
		{name: "three choices uncapped", periods: 4, caps: []int{9, 9, 9}},
		{name: "two choices capped", periods: 6, caps: []int{2, 3}},
		{name: "three choices capped", periods: 6, caps: []int{1, 2, 4}},
		{name: "single choice", periods: 3, caps: []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := experienceModel(t, tt.periods, tt.caps)
			ss, err := Build(m)
			require.NoError(t, err)

			total := 0
			for p := 0; p < tt.periods; p++ {
				want := cappedCompositions(p, tt.caps)
				assert.Equal(t, want, ss.NStatesInPeriod(p), "period %d", p)
				total += want
			}
			assert.Equal(t, total, ss.NStates())
		})
	}
}

func TestIndexerRoundTrip(t *testing.T) {
	m := experienceModel(t, 5, []int{3, 4, 2})
	ss, err := Build(m)
	require.NoError(t, err)
	require.True(t, ss.Indexer().Frozen())

	for _, g := range ss.Groups() {
		for i, s := range g.States {
			pos := ss.Lookup(s)
			assert.Equal(t, indexer.Position{Key: g.Key, Index: int32(i)}, pos)
			assert.Equal(t, s, ss.State(pos))
		}
	}
}

func TestCoreKeysGroupByChoiceSet(t *testing.T) {
	m := experienceModel(t, 4, []int{1, 3})
	ss, err := Build(m)
	require.NoError(t, err)

	for p := 0; p < ss.NPeriods(); p++ {
		seen := make(map[model.ChoiceSet]bool)
		for _, key := range ss.KeysInPeriod(p) {
			g := ss.Group(key)
			assert.Equal(t, p, g.Period)
			assert.False(t, seen[g.ChoiceSet], "choice set %s repeated in period %d", g.ChoiceSet.Format(2), p)
			seen[g.ChoiceSet] = true
			for _, s := range g.States {
				assert.Equal(t, g.ChoiceSet, m.AdmissibleChoices(s))
			}
		}
	}
}

func TestLawOfMotion(t *testing.T) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "a", HasWage: true, HasExperience: true, MaxExperience: 3},
			{Name: "edu", HasExperience: true, MaxExperience: 2},
			{Name: "home"},
		},
		NPeriods:       5,
		NLaggedChoices: 2,
	}
	m, err := model.New(spec)
	require.NoError(t, err)

	s := model.State{Period: 1, Experience: []int{1, 0}, Lagged: []int{2, 0}}

	tests := []struct {
		choice int
		want   model.State
	}{
		{choice: 0, want: model.State{Period: 2, Experience: []int{2, 0}, Lagged: []int{0, 2}}},
		{choice: 1, want: model.State{Period: 2, Experience: []int{1, 1}, Lagged: []int{1, 2}}},
		{choice: 2, want: model.State{Period: 2, Experience: []int{1, 0}, Lagged: []int{2, 2}}},
	}
	for _, tt := range tests {
		got := LawOfMotion(m, s, tt.choice)
		assert.Equal(t, tt.want, got, "choice %d", tt.choice)
		assert.Equal(t, tt.want.Coords(nil), NextCoords(m, s.Coords(nil), tt.choice, nil), "choice %d", tt.choice)
	}
	assert.Equal(t, model.State{Period: 1, Experience: []int{1, 0}, Lagged: []int{2, 0}}, s, "input must not change")
}

func TestLawOfMotionInvariant(t *testing.T) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "a", HasWage: true, HasExperience: true, MaxExperience: 2},
			{Name: "b", HasWage: true, HasExperience: true, MaxExperience: 3, InitialExperience: []int{0, 1}},
			{Name: "home"},
		},
		NPeriods:       6,
		NLaggedChoices: 1,
	}
	m, err := model.New(spec)
	require.NoError(t, err)
	ss, err := Build(m)
	require.NoError(t, err)

	for _, g := range ss.Groups() {
		if g.Period+1 == ss.NPeriods() {
			continue
		}
		for _, s := range g.States {
			for _, c := range g.ChoiceSet.Indices() {
				ns := LawOfMotion(m, s, c)
				assert.Equal(t, s.Period+1, ns.Period)
				for k, e := range ns.Experience {
					assert.LessOrEqual(t, e, m.Choice(m.ExperienceChoice(k)).MaxExperience)
					grew := e - s.Experience[k]
					if m.ExperienceChoice(k) == c {
						assert.Equal(t, 1, grew)
					} else {
						assert.Equal(t, 0, grew)
					}
				}
				assert.True(t, ss.Lookup(ns).Valid(), "successor %v of %v missing", ns, s)
			}
		}
	}
}

func TestRestrictionsAndFilters(t *testing.T) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "work", HasWage: true, HasExperience: true, MaxExperience: 4},
			{Name: "edu", HasExperience: true, MaxExperience: 4, InitialExperience: []int{0, 2}},
			{Name: "home"},
		},
		NPeriods:       4,
		NLaggedChoices: 1,
		// Work needs at least two years of schooling.
		Restrictions: []model.Restriction{{
			Choice:  0,
			Forbids: func(s model.State) bool { return s.Experience[1] < 2 },
		}},
		// Nobody starts having just been in school without any schooling.
		Filters: []model.Filter{{
			Name:  "edu without schooling",
			Drops: func(s model.State) bool { return s.Lagged[0] == 1 && s.Experience[1] == 0 },
		}},
	}
	m, err := model.New(spec)
	require.NoError(t, err)
	ss, err := Build(m)
	require.NoError(t, err)

	// 2 initial schooling levels x 3 lagged choices, minus the filtered one.
	assert.Equal(t, 5, ss.NStatesInPeriod(0))

	for _, g := range ss.Groups() {
		for _, s := range g.States {
			assert.False(t, m.Filtered(s), "filtered state %v enumerated", s)
			if s.Experience[1] < 2 {
				assert.False(t, g.ChoiceSet.Has(0), "work admissible in %v", s)
			}
			if s.Experience[0] > 0 {
				assert.GreaterOrEqual(t, s.Experience[1], 2)
			}
		}
	}
}

func TestFilteredSuccessorRemovesChoice(t *testing.T) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "a", HasExperience: true, MaxExperience: 5},
			{Name: "b"},
		},
		NPeriods: 3,
		Filters: []model.Filter{{
			Name:  "no experience in period 2",
			Drops: func(s model.State) bool { return s.Period == 2 && s.Experience[0] > 0 },
		}},
	}
	m, err := model.New(spec)
	require.NoError(t, err)
	ss, err := Build(m)
	require.NoError(t, err)

	for _, key := range ss.KeysInPeriod(1) {
		g := ss.Group(key)
		assert.False(t, g.ChoiceSet.Has(0))
	}
	assert.Equal(t, 1, ss.NStatesInPeriod(2))
}

func TestNoInitialStates(t *testing.T) {
	spec := model.Spec{
		Choices:  []model.Choice{{Name: "a"}, {Name: "b"}},
		NPeriods: 2,
		Filters: []model.Filter{{
			Name:  "everything",
			Drops: func(model.State) bool { return true },
		}},
	}
	m, err := model.New(spec)
	require.NoError(t, err)

	_, err = Build(m)
	assert.ErrorIs(t, err, model.ErrNoInitialStates)
	assert.True(t, errors.Is(err, model.ErrInvalidConfig))
}

func TestEmptyChoiceSetHasNoSuccessors(t *testing.T) {
	m := experienceModel(t, 4, []int{1})
	ss, err := Build(m)
	require.NoError(t, err)

	assert.Equal(t, 1, ss.NStatesInPeriod(1))
	g := ss.Group(ss.KeysInPeriod(1)[0])
	assert.True(t, g.ChoiceSet.Empty())
	assert.Equal(t, 0, ss.NStatesInPeriod(2))
	assert.Equal(t, 0, ss.NStatesInPeriod(3))
}

func TestSaveLoad(t *testing.T) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "a", HasWage: true, HasExperience: true, MaxExperience: 3},
			{Name: "b", HasExperience: true, MaxExperience: 2},
			{Name: "home"},
		},
		NPeriods:       4,
		NLaggedChoices: 1,
	}
	m, err := model.New(spec)
	require.NoError(t, err)
	ss, err := Build(m)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ss.Save(&buf))

	loaded, err := Load(&buf, m)
	require.NoError(t, err)
	assert.True(t, loaded.Indexer().Frozen())
	assert.Equal(t, ss.NStates(), loaded.NStates())
	require.Len(t, loaded.Groups(), len(ss.Groups()))

	for key, g := range ss.Groups() {
		lg := loaded.Group(int32(key))
		assert.Equal(t, g.Period, lg.Period)
		assert.Equal(t, g.ChoiceSet, lg.ChoiceSet)
		assert.Equal(t, g.States, lg.States)
		for i, s := range g.States {
			assert.Equal(t, indexer.Position{Key: int32(key), Index: int32(i)}, loaded.Lookup(s))
		}
	}
	for p := 0; p < m.NPeriods(); p++ {
		assert.Equal(t, ss.KeysInPeriod(p), loaded.KeysInPeriod(p))
	}

	// A model with another domain rejects the snapshot.
	other := experienceModel(t, 4, []int{3})
	buf.Reset()
	require.NoError(t, ss.Save(&buf))
	_, err = Load(&buf, other)
	assert.Error(t, err)
}
