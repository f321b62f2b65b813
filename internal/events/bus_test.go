package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_SubscribePublish(t *testing.T) {
	bus := NewBus()

	var mergeEvents, allEvents []Event
	bus.Subscribe(MergeCompleted, func(ev Event) { mergeEvents = append(mergeEvents, ev) })
	bus.Subscribe("", func(ev Event) { allEvents = append(allEvents, ev) })

	bus.Publish(Event{Name: MergeCompleted, MergeID: "m1", BranchIDs: []int64{1, 2}})
	bus.Publish(Event{Name: ConflictResolved, MergeID: "m1", ConflictID: 7})

	assert.Len(t, mergeEvents, 1)
	assert.Equal(t, "m1", mergeEvents[0].MergeID)
	assert.False(t, mergeEvents[0].Timestamp.IsZero())

	assert.Len(t, allEvents, 2)
	assert.Equal(t, int64(7), allEvents[1].ConflictID)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(Event{Name: MergeCompleted})
	})
}
