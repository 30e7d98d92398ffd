package util

import (
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Journal collects undo operations and events for a single entry point call.
// Reverting applies the undo operations in reverse order and drops every
// buffered event, leaving state as it was before the call.
type Journal struct {
	undo   []func()
	events []types.Event
}

func NewJournal() *Journal {
	return &Journal{
		undo:   make([]func(), 0),
		events: make([]types.Event, 0),
	}
}

// Record adds an operation to apply on revert.
func (j *Journal) Record(undo func()) {
	j.undo = append(j.undo, undo)
}

// Emit buffers an event until the journal is committed.
func (j *Journal) Emit(evt types.Event) {
	j.events = append(j.events, evt)
}

// Revert undoes all recorded writes.
func (j *Journal) Revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}

	j.undo = j.undo[:0]
	j.events = j.events[:0]
}

// Commit discards the undo log and returns the buffered events in emit order.
func (j *Journal) Commit() []types.Event {
	events := j.events

	j.undo = nil
	j.events = nil

	return events
}

// Set assigns value to the target, recording the previous value in the
// journal.
func Set[T any](j *Journal, target *T, value T) {
	previous := *target

	j.Record(func() { *target = previous })

	*target = value
}

// SetKey assigns value to key in m, recording the previous entry in the
// journal.
func SetKey[K comparable, V any](j *Journal, m map[K]V, key K, value V) {
	previous, existed := m[key]

	j.Record(func() {
		if existed {
			m[key] = previous
		} else {
			delete(m, key)
		}
	})

	m[key] = value
}

// DeleteKey removes key from m, recording the previous entry in the journal.
func DeleteKey[K comparable, V any](j *Journal, m map[K]V, key K) {
	previous, existed := m[key]
	if !existed {
		return
	}

	j.Record(func() { m[key] = previous })

	delete(m, key)
}

// Append appends value to the slice at target, recording the previous length.
func Append[T any](j *Journal, target *[]T, value T) {
	previous := *target

	j.Record(func() { *target = previous })

	*target = append(*target, value)
}
