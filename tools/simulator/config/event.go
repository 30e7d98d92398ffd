package config

import (
	"math/big"
	"time"
)

const (
	DefaultBlockCadence = 12 * time.Second
)

const (
	AllExpected  = "all"
	NoneExpected = "none"
)

const (
	FastGasFeed    = "fastGas"
	LinkNativeFeed = "linkNative"
)

type EventType string

const (
	GenerateUpkeepEventType EventType = "generateUpkeeps"
	FeedUpdateEventType     EventType = "feedUpdate"
)

type Event struct {
	Type         EventType `json:"type"`
	TriggerBlock uint64    `json:"eventBlockNumber"`
	Comment      string    `json:"comment,omitempty"`
}

// GenerateUpkeepEvent is a configuration for creating upkeeps in bulk. Each
// generated upkeep is registered through the registrar in the trigger block.
type GenerateUpkeepEvent struct {
	Event
	// Count is the total number of upkeeps to create for this event.
	Count int `json:"count"`
	// ExecuteGas is the perform gas limit registered for each upkeep.
	ExecuteGas uint32 `json:"executeGas"`
	// CheckGas is the gas each eligibility check consumes.
	CheckGas uint64 `json:"checkGas,omitempty"`
	// PerformGas is the gas each perform consumes. Values above ExecuteGas
	// cause performs to run out of gas.
	PerformGas uint64 `json:"performGas"`
	// Funding is the LINK amount in juels sent with each registration.
	Funding *big.Int `json:"funding"`
	// EligibilityFunc is a basic linear function for which to indicate
	// eligibility. This can be seen as the cadence on which each upkeep becomes
	// eligible. The values 'always' and 'never' are also valid. Empty is
	// assumed to be 'never'.
	EligibilityFunc string `json:"eligibilityFunc,omitempty"`
	// OffsetFunc is a basic linear function that determines the block reference
	// on which to apply the eligibility function. Each generated upkeep can
	// follow the same eligibility function, but start at different blocks
	// determined by the offset function. For eligibility 'always' or 'never' it
	// is preferable to leave this field empty.
	OffsetFunc string `json:"offsetFunc,omitempty"`
	// Expected provides customizations to upkeep perform assertions. By default
	// all eligible upkeeps are expected to be performed where the default value
	// in this configuration is 'all'. The alternative is 'none' where none of
	// generated upkeeps are expected to perform, such as upkeeps funded below
	// their maximum payment.
	Expected string `json:"expected,omitempty"`
}

// FeedUpdateEvent sets a new answer on a price feed in the trigger block.
// A frozen update stops the feed from reporting fresh rounds, which lets the
// answer go stale.
type FeedUpdateEvent struct {
	Event
	Feed   string   `json:"feed"`
	Answer *big.Int `json:"answer,omitempty"`
	Freeze bool     `json:"freeze,omitempty"`
}
