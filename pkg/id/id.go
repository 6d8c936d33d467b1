package id

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// String returns the lowercase hex form. It is the canonical registry key.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// NowMs returns current time in milliseconds since Unix epoch. Tests may
// substitute it to control ordering.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing IDs per process. A clock that
// runs backwards never produces a smaller id: the generator holds the last
// observed millisecond and keeps incrementing the sequence instead.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new ID strictly greater than any previously returned one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms <= g.lastMs {
		ms = g.lastMs
		g.sequence++
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.sequence)
	return out
}

// NextString is shorthand for Next().String().
func (g *Generator) NextString() string { return g.Next().String() }
