package indexer

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-discrete-choice/model"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		domain   []int
		wantBits int
		wantErr  bool
	}{
		{name: "period and two experiences", domain: []int{5, 11, 3}, wantBits: 3 + 4 + 2},
		{name: "single valued coordinate", domain: []int{1, 2}, wantBits: 1},
		{name: "empty", domain: nil, wantErr: true},
		{name: "zero bound", domain: []int{3, 0}, wantErr: true},
		{name: "too wide", domain: []int{math.MaxInt32, math.MaxInt32, math.MaxInt32}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := New(tt.domain)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBits, ix.Bits())
		})
	}
}

func TestInsertAssignsIndicesPerKey(t *testing.T) {
	ix, err := New([]int{3, 4})
	require.NoError(t, err)

	pos, ok := ix.Insert([]int{0, 0}, 0)
	assert.True(t, ok)
	assert.Equal(t, Position{Key: 0, Index: 0}, pos)

	pos, ok = ix.Insert([]int{1, 0}, 1)
	assert.True(t, ok)
	assert.Equal(t, Position{Key: 1, Index: 0}, pos)

	pos, ok = ix.Insert([]int{1, 1}, 1)
	assert.True(t, ok)
	assert.Equal(t, Position{Key: 1, Index: 1}, pos)

	// Re-inserting keeps the original position, even under another key.
	pos, ok = ix.Insert([]int{1, 0}, 2)
	assert.False(t, ok)
	assert.Equal(t, Position{Key: 1, Index: 0}, pos)

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, 2, ix.KeyLen(1))
	assert.Equal(t, 0, ix.KeyLen(7))
}

func TestRoundTrip(t *testing.T) {
	domain := []int{6, 8, 8, 4}
	ix, err := New(domain)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	assigned := make(map[[4]int]Position)
	for i := 0; i < 500; i++ {
		var c [4]int
		for j, d := range domain {
			c[j] = rng.Intn(d)
		}
		pos, ok := ix.Insert(c[:], int32(c[0]))
		if prev, seen := assigned[c]; seen {
			assert.False(t, ok)
			assert.Equal(t, prev, pos)
			continue
		}
		assert.True(t, ok)
		assigned[c] = pos
	}
	ix.Freeze()

	for c, want := range assigned {
		assert.Equal(t, want, ix.Lookup(c[:]))
		assert.Equal(t, c[:], ix.Coords(want, nil))
	}
	assert.Equal(t, len(assigned), ix.Len())
}

func TestLookupMissingReturnsSentinel(t *testing.T) {
	ix, err := New([]int{2, 2})
	require.NoError(t, err)
	ix.Insert([]int{0, 1}, 0)
	ix.Freeze()

	pos := ix.Lookup([]int{1, 1})
	assert.Equal(t, Invalid, pos)
	assert.False(t, pos.Valid())
	assert.Equal(t, int32(math.MinInt32), pos.Key)
	assert.False(t, ix.Contains([]int{1, 0}))
	assert.True(t, ix.Contains([]int{0, 1}))
}

func TestProgrammingErrorsPanic(t *testing.T) {
	ix, err := New([]int{2, 2})
	require.NoError(t, err)

	assert.Panics(t, func() { ix.Lookup([]int{2, 0}) }, "outside domain")
	assert.Panics(t, func() { ix.Lookup([]int{0, -1}) }, "negative coordinate")
	assert.Panics(t, func() { ix.Lookup([]int{0}) }, "wrong arity")
	assert.Panics(t, func() { ix.Insert([]int{0, 0}, -1) }, "negative key")

	ix.Freeze()
	assert.Panics(t, func() { ix.Insert([]int{0, 0}, 0) }, "insert after freeze")
}

func TestConcurrentLookups(t *testing.T) {
	ix, err := New([]int{10, 10})
	require.NoError(t, err)
	for a := 0; a < 10; a++ {
		for b := 0; b < 10; b++ {
			ix.Insert([]int{a, b}, int32(a))
		}
	}
	ix.Freeze()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coords := make([]int, 2)
			for a := 0; a < 10; a++ {
				for b := 0; b < 10; b++ {
					coords[0], coords[1] = a, b
					pos := ix.Lookup(coords)
					if pos.Key != int32(a) || pos.Index != int32(b) {
						t.Errorf("Lookup(%v) = %+v", coords, pos)
					}
				}
			}
		}()
	}
	wg.Wait()
}
