package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Trinity ID layout: 36 characters total, three segments joined by a
// separator at fixed offsets.
//
//	tttttttttttttttt rrrr - nnnnnn - cccccccc
//	[0..19]                 [21..26] [28..35]
//
// t = wall-clock nanoseconds (hex), r = random padding,
// n = node discriminator, c = per-process sequence.
const (
	TrinityIDLength  = 36
	trinitySepFirst  = 20
	trinitySepSecond = 27
	trinitySep       = '-'
)

// IDGenerator produces Trinity IDs that are unique across concurrent
// callers. The node discriminator makes IDs from different generator
// instances (and different processes) disjoint; the sequence makes IDs
// from the same instance disjoint.
type IDGenerator struct {
	node string // 6 hex chars
	seq  atomic.Uint32
}

// NewIDGenerator creates a generator with a fresh node discriminator.
func NewIDGenerator() *IDGenerator {
	u := uuid.New()
	return &IDGenerator{node: hex.EncodeToString(u[:3])}
}

// NewID returns a new Trinity ID.
func (g *IDGenerator) NewID() string {
	var buf [2]byte
	rand.Read(buf[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))

	seq := g.seq.Add(1)

	return fmt.Sprintf("%s%s%c%s%c%08x",
		hex.EncodeToString(ts[:]),
		hex.EncodeToString(buf[:]),
		trinitySep,
		g.node,
		trinitySep,
		seq,
	)
}

// ValidTrinityID reports whether s has the Trinity ID shape: 36 characters
// with separators at the two fixed offsets and hex everywhere else.
func ValidTrinityID(s string) bool {
	if len(s) != TrinityIDLength {
		return false
	}
	for i := 0; i < TrinityIDLength; i++ {
		if i == trinitySepFirst || i == trinitySepSecond {
			if s[i] != trinitySep {
				return false
			}
			continue
		}
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
