package indexer

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/n0madic/go-discrete-choice/model"
)

// InvalidIndex marks a state that is not part of the state space. It is the
// most negative int32 and can never be a valid key or index.
const InvalidIndex int32 = math.MinInt32

// Position locates a core state: the core key of its group and its index
// within that group.
type Position struct {
	Key   int32
	Index int32
}

// Invalid is returned by Lookup for absent states.
var Invalid = Position{Key: InvalidIndex, Index: InvalidIndex}

// Valid reports whether p refers to a state.
func (p Position) Valid() bool {
	return p.Key != InvalidIndex && p.Index != InvalidIndex
}

// Indexer maps core coordinate tuples to positions. Coordinates are packed
// into a fixed-width uint64 and stored in an arena in insertion order.
//
// Insert must not be called concurrently. After Freeze the indexer is
// read-only and safe for concurrent use by any number of goroutines.
type Indexer struct {
	domain []int  // exclusive upper bound per coordinate
	shifts []uint // bit offset per coordinate
	bits   int    // total packed width

	table   map[uint64]Position
	arena   []int32   // flat coordinates, len(domain) per state
	members [][]int32 // core key -> arena ids in core index order
	frozen  bool
}

// New creates an empty indexer for tuples bounded by domain.
func New(domain []int) (*Indexer, error) {
	if len(domain) == 0 {
		return nil, &model.ConfigError{Field: "indexer domain", Reason: "no coordinates"}
	}

	ix := &Indexer{
		domain: append([]int(nil), domain...),
		shifts: make([]uint, len(domain)),
		table:  make(map[uint64]Position),
	}
	for i, d := range domain {
		if d <= 0 {
			return nil, &model.ConfigError{Field: "indexer domain", Reason: fmt.Sprintf("coordinate %d has empty domain", i)}
		}
		ix.shifts[i] = uint(ix.bits)
		ix.bits += bits.Len(uint(d - 1))
	}
	if ix.bits > 64 {
		return nil, &model.ConfigError{Field: "indexer domain", Reason: fmt.Sprintf("packed key needs %d bits, at most 64 are supported", ix.bits)}
	}
	return ix, nil
}

// pack encodes coords; out-of-domain coordinates are programming errors.
func (ix *Indexer) pack(coords []int) uint64 {
	if len(coords) != len(ix.domain) {
		panic(fmt.Sprintf("indexer: got %d coordinates, want %d", len(coords), len(ix.domain)))
	}
	var key uint64
	for i, c := range coords {
		if c < 0 || c >= ix.domain[i] {
			panic(fmt.Sprintf("indexer: coordinate %d = %d outside [0, %d)", i, c, ix.domain[i]))
		}
		key |= uint64(c) << ix.shifts[i]
	}
	return key
}

// Pack returns the packed key of coords.
func (ix *Indexer) Pack(coords []int) uint64 {
	return ix.pack(coords)
}

// Insert adds coords under the core key. New states get the next core index
// of that key; existing states keep their position and ok is false.
func (ix *Indexer) Insert(coords []int, key int32) (pos Position, ok bool) {
	if ix.frozen {
		panic("indexer: insert after freeze")
	}
	if key < 0 {
		panic(fmt.Sprintf("indexer: negative core key %d", key))
	}

	packed := ix.pack(coords)
	if existing, found := ix.table[packed]; found {
		return existing, false
	}

	for int(key) >= len(ix.members) {
		ix.members = append(ix.members, nil)
	}
	id := int32(len(ix.arena) / len(ix.domain))
	for _, c := range coords {
		ix.arena = append(ix.arena, int32(c))
	}

	pos = Position{Key: key, Index: int32(len(ix.members[key]))}
	ix.members[key] = append(ix.members[key], id)
	ix.table[packed] = pos
	return pos, true
}

// Freeze ends construction.
func (ix *Indexer) Freeze() { ix.frozen = true }

// Frozen reports whether Freeze was called.
func (ix *Indexer) Frozen() bool { return ix.frozen }

// Lookup returns the position of coords or Invalid if the state is absent.
func (ix *Indexer) Lookup(coords []int) Position {
	if pos, ok := ix.table[ix.pack(coords)]; ok {
		return pos
	}
	return Invalid
}

// Contains reports whether coords were inserted.
func (ix *Indexer) Contains(coords []int) bool {
	return ix.Lookup(coords).Valid()
}

// Coords appends the coordinates stored at pos to dst.
func (ix *Indexer) Coords(pos Position, dst []int) []int {
	if !pos.Valid() || int(pos.Key) >= len(ix.members) || int(pos.Index) >= len(ix.members[pos.Key]) {
		panic(fmt.Sprintf("indexer: no state at %+v", pos))
	}
	id := int(ix.members[pos.Key][pos.Index])
	w := len(ix.domain)
	dst = dst[:0]
	for _, c := range ix.arena[id*w : (id+1)*w] {
		dst = append(dst, int(c))
	}
	return dst
}

// Len returns the number of states.
func (ix *Indexer) Len() int { return len(ix.table) }

// NKeys returns the number of core keys seen so far.
func (ix *Indexer) NKeys() int { return len(ix.members) }

// KeyLen returns the number of states under a core key.
func (ix *Indexer) KeyLen(key int32) int {
	if key < 0 || int(key) >= len(ix.members) {
		return 0
	}
	return len(ix.members[key])
}

// Domain returns the coordinate bounds.
func (ix *Indexer) Domain() []int { return ix.domain }

// Bits returns the packed key width.
func (ix *Indexer) Bits() int { return ix.bits }
