package audit

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *BoltSink {
	t.Helper()
	sink, err := NewBoltSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestBoltSink_WriteAndList(t *testing.T) {
	sink := newTestSink(t)

	require.NoError(t, sink.Write(&Record{
		Timestamp:  time.Now(),
		Operation:  "merge",
		Caller:     "alice",
		Success:    true,
		DurationMS: 12,
		Params:     map[string]interface{}{"source_branch_id": float64(2), "target_branch_id": float64(1)},
	}))
	require.NoError(t, sink.Write(&Record{
		Timestamp: time.Now(),
		Operation: "resolve_conflict",
		Success:   false,
		Error:     "conflict already resolved",
	}))

	records, err := sink.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first
	assert.Equal(t, "resolve_conflict", records[0].Operation)
	assert.False(t, records[0].Success)
	assert.Equal(t, "merge", records[1].Operation)
	assert.Equal(t, "alice", records[1].Caller)
	assert.Equal(t, float64(2), records[1].Params["source_branch_id"])
}

func TestBoltSink_ListLimit(t *testing.T) {
	sink := newTestSink(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write(&Record{Timestamp: time.Now(), Operation: "merge", Success: true}))
	}

	records, err := sink.List(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestBoltSink_ConcurrentWriters(t *testing.T) {
	sink := newTestSink(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				sink.Write(&Record{Timestamp: time.Now(), Operation: "merge", Success: true})
			}
		}()
	}
	wg.Wait()

	records, err := sink.List(0)
	require.NoError(t, err)
	assert.Len(t, records, 50)

	seen := make(map[uint64]bool)
	for _, rec := range records {
		assert.False(t, seen[rec.Seq], "duplicate sequence %d", rec.Seq)
		seen[rec.Seq] = true
	}
}
