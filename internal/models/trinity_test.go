package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Format(t *testing.T) {
	gen := NewIDGenerator()
	id := gen.NewID()

	require.Len(t, id, TrinityIDLength)
	assert.Equal(t, byte('-'), id[20])
	assert.Equal(t, byte('-'), id[27])
	assert.True(t, ValidTrinityID(id), "generated ID should validate: %s", id)
}

func TestNewID_UniqueUnderConcurrency(t *testing.T) {
	const (
		workers      = 25
		idsPerWorker = 40
	)

	gen := NewIDGenerator()
	results := make(chan string, workers*idsPerWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerWorker; j++ {
				results <- gen.NewID()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, workers*idsPerWorker)
	for id := range results {
		require.False(t, seen[id], "duplicate ID generated: %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*idsPerWorker)
}

func TestNewID_DistinctGenerators(t *testing.T) {
	a := NewIDGenerator()
	b := NewIDGenerator()

	assert.NotEqual(t, a.NewID(), b.NewID())
}

func TestValidTrinityID(t *testing.T) {
	gen := NewIDGenerator()
	assert.True(t, ValidTrinityID(gen.NewID()))

	assert.False(t, ValidTrinityID(""))
	assert.False(t, ValidTrinityID("too-short"))
	assert.False(t, ValidTrinityID("000000000000000000000000000000000000"))  // no separators
	assert.False(t, ValidTrinityID("0000000000000000000-00000000-0000000")) // separators misplaced
}
