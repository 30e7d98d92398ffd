package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Event is implemented by every emitted contract event.
type Event interface {
	EventName() string
}

// Log is an event as recorded by the emitting contract.
type Log struct {
	BlockNumber uint64
	Address     common.Address
	Event       Event
}

// FilterLogs returns the events in logs of type T.
func FilterLogs[T Event](logs []Log) []T {
	filtered := make([]T, 0)

	for _, l := range logs {
		if evt, ok := l.Event.(T); ok {
			filtered = append(filtered, evt)
		}
	}

	return filtered
}
