package config

import (
	"fmt"
	"math/big"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/keeper-registry/pkg/registry"
)

var (
	ErrEncoding = fmt.Errorf("encoding/decoding failure")
)

// SimulationPlan is a collection of configurations with which to run a
// simulation.
type SimulationPlan struct {
	Blocks          Blocks                `json:"blocks"`
	Registry        registry.Config       `json:"registry"`
	Registrar       Registrar             `json:"registrar"`
	Feeds           Feeds                 `json:"feeds"`
	Keepers         Keepers               `json:"keepers"`
	GenerateUpkeeps []GenerateUpkeepEvent `json:"-"`
	FeedUpdates     []FeedUpdateEvent     `json:"-"`
}

// DefaultSimulationPlan provides the values applied to any field a decoded
// plan leaves out.
func DefaultSimulationPlan() SimulationPlan {
	return SimulationPlan{
		Blocks: Blocks{
			Genesis:  1,
			Cadence:  Duration(DefaultBlockCadence),
			Duration: 100,
		},
		Registry: registry.DefaultConfig(),
		Registrar: Registrar{
			AutoApprove:        true,
			WindowSizeInBlocks: 1,
			AllowedPerWindow:   1_000,
			MinLINKJuels:       big.NewInt(1_000_000_000_000_000_000),
		},
		Feeds: Feeds{
			FastGasWei: big.NewInt(100_000_000_000),
			LinkNative: big.NewInt(30_000_000_000_000_000),
		},
		Keepers: Keepers{
			Count:             3,
			GasLimit:          6_000_000,
			MaxServiceWorkers: 10,
		},
		GenerateUpkeeps: []GenerateUpkeepEvent{},
		FeedUpdates:     []FeedUpdateEvent{},
	}
}

// Encode applies JSON encoding of a simulation plan to bytes.
func (p SimulationPlan) Encode() ([]byte, error) {
	type encodedOutput struct {
		SimulationPlan
		Events []interface{} `json:"events"`
	}

	encodable := encodedOutput{
		SimulationPlan: p,
		Events:         make([]interface{}, 0, len(p.GenerateUpkeeps)+len(p.FeedUpdates)),
	}

	for _, event := range p.GenerateUpkeeps {
		// ensure the type is set properly
		event.Type = GenerateUpkeepEventType
		encodable.Events = append(encodable.Events, event)
	}

	for _, event := range p.FeedUpdates {
		event.Type = FeedUpdateEventType
		encodable.Events = append(encodable.Events, event)
	}

	return json.Marshal(encodable)
}

// DecodeSimulationPlan uses JSON encoding to decode bytes to a simulation plan.
func DecodeSimulationPlan(encoded []byte) (SimulationPlan, error) {
	plan := DefaultSimulationPlan()

	if err := json.Unmarshal(encoded, &plan); err != nil {
		return plan, fmt.Errorf("%w: failed to decode simulation plan: %s", ErrEncoding, err.Error())
	}

	type eventCollection struct {
		Events []json.RawMessage `json:"events"`
	}

	var events eventCollection

	if err := json.Unmarshal(encoded, &events); err != nil {
		return plan, fmt.Errorf("%w: failed to decode events in simulation plan: %s", ErrEncoding, err.Error())
	}

	for idx, rawEvent := range events.Events {
		var event Event
		if err := json.Unmarshal(rawEvent, &event); err != nil {
			return plan, fmt.Errorf("%w: failed to decode event in simulation plan: %s", ErrEncoding, err.Error())
		}

		switch event.Type {
		case GenerateUpkeepEventType:
			var generateEvent GenerateUpkeepEvent
			if err := json.Unmarshal(rawEvent, &generateEvent); err != nil {
				return plan, fmt.Errorf("%w: failed to decode generateUpkeep event in simulation plan at index %d: %s", ErrEncoding, idx, err.Error())
			}

			if generateEvent.Expected == "" {
				generateEvent.Expected = AllExpected
			}

			plan.GenerateUpkeeps = append(plan.GenerateUpkeeps, generateEvent)
		case FeedUpdateEventType:
			var feedEvent FeedUpdateEvent
			if err := json.Unmarshal(rawEvent, &feedEvent); err != nil {
				return plan, fmt.Errorf("%w: failed to decode feedUpdate event in simulation plan at index %d: %s", ErrEncoding, idx, err.Error())
			}

			plan.FeedUpdates = append(plan.FeedUpdates, feedEvent)
		default:
			return plan, fmt.Errorf("%w: unrecognized event at index %d", ErrEncoding, idx)
		}
	}

	return plan, plan.Validate()
}

// DecodeSimulationPlanYAML converts a YAML document to its JSON form and
// decodes it with DecodeSimulationPlan.
func DecodeSimulationPlanYAML(encoded []byte) (SimulationPlan, error) {
	var raw interface{}

	if err := yaml.Unmarshal(encoded, &raw); err != nil {
		return DefaultSimulationPlan(), fmt.Errorf("%w: failed to decode yaml simulation plan: %s", ErrEncoding, err.Error())
	}

	converted, err := json.Marshal(raw)
	if err != nil {
		return DefaultSimulationPlan(), fmt.Errorf("%w: failed to convert yaml simulation plan: %s", ErrEncoding, err.Error())
	}

	return DecodeSimulationPlan(converted)
}

// Validate checks the plan for values a simulation cannot run with.
func (p SimulationPlan) Validate() error {
	if p.Blocks.Duration <= 0 {
		return fmt.Errorf("%w: durationInBlocks must be positive", ErrEncoding)
	}

	if p.Keepers.Count <= 0 {
		return fmt.Errorf("%w: keeper count must be positive", ErrEncoding)
	}

	if p.Feeds.FastGasWei == nil || p.Feeds.LinkNative == nil {
		return fmt.Errorf("%w: feed prices are required", ErrEncoding)
	}

	if err := p.Registry.Validate(); err != nil {
		return err
	}

	for idx, event := range p.FeedUpdates {
		if event.Feed != FastGasFeed && event.Feed != LinkNativeFeed {
			return fmt.Errorf("%w: unrecognized feed '%s' at feed update %d", ErrEncoding, event.Feed, idx)
		}
	}

	return nil
}

// Blocks is a configuration for simulated block production.
type Blocks struct {
	// Genesis is the starting block number.
	Genesis uint64 `json:"genesisBlock"`
	// Cadence is the simulated time between blocks. It advances the chain
	// clock only; blocks are mined as fast as the keepers finish.
	Cadence Duration `json:"blockCadence"`
	// Duration is the number of blocks to simulate.
	Duration int `json:"durationInBlocks"`
}

// Registrar configures the registration gateway that simulated upkeeps are
// registered through.
type Registrar struct {
	AutoApprove        bool     `json:"autoApprove"`
	WindowSizeInBlocks uint32   `json:"windowSizeInBlocks"`
	AllowedPerWindow   uint16   `json:"allowedPerWindow"`
	MinLINKJuels       *big.Int `json:"minLINKJuels"`
}

// Feeds holds the starting answers of the price feeds.
type Feeds struct {
	// FastGasWei is the fast gas answer in wei
	FastGasWei *big.Int `json:"fastGasWei"`
	// LinkNative is the LINK price in wei per LINK
	LinkNative *big.Int `json:"linkNative"`
	// GasJitter is the standard deviation of per block gas price movement as
	// a fraction of the current answer. Zero keeps the answer fixed.
	GasJitter float64 `json:"fastGasJitter"`
}

// Keepers configures the simulated keeper nodes.
type Keepers struct {
	Count int `json:"count"`
	// GasLimit is the transaction gas limit each keeper sends performs with
	GasLimit uint64 `json:"gasLimit"`
	// GasPrice caps the effective gas price of performs. Nil leaves the
	// price uncapped.
	GasPrice *big.Int `json:"gasPrice,omitempty"`
	// MaxServiceWorkers bounds the number of checks run in parallel
	MaxServiceWorkers int `json:"maxServiceWorkers"`
}
