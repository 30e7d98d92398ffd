package node

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

var (
	ErrKeeperSetup = fmt.Errorf("keeper setup failure")
)

// Registry is the registry surface keepers work against.
type Registry interface {
	GetConfig() registry.Config
	GetUpkeepCount() uint64
	CheckUpkeep(context.Context, types.CallOpts, types.UpkeepIdentifier) (types.CheckResult, error)
	PerformUpkeep(context.Context, types.TransactOpts, types.UpkeepIdentifier, []byte) (types.PerformResult, error)
}

// Recorder receives the outcome of keeper work.
type Recorder interface {
	RecordCheck(block uint64, keeper common.Address, result types.CheckResult)
	RecordPerform(block uint64, keeper common.Address, result types.PerformResult)
	RecordError(block uint64, keeper common.Address, id types.UpkeepIdentifier, err error)
}

type GroupConfig struct {
	Keepers  config.Keepers
	Registry Registry
	Recorder Recorder
	Logger   *log.Logger
}

// Group is the set of keepers serving one registry. Keepers take turns in
// windows of BlockCountPerTurn blocks; when the keeper on turn is blocked
// from performing an upkeep, the next keeper in order tries.
type Group struct {
	keepers  []*Keeper
	registry Registry
	recorder Recorder
	checks   *util.WorkerGroup[types.CheckResult]
	logger   *log.Logger
}

func NewGroup(conf GroupConfig) (*Group, error) {
	if conf.Keepers.Count <= 0 {
		return nil, fmt.Errorf("%w: keeper count must be positive", ErrKeeperSetup)
	}

	keepers := make([]*Keeper, 0, conf.Keepers.Count)

	for idx := 0; idx < conf.Keepers.Count; idx++ {
		keeper, err := NewKeeper(fmt.Sprintf("keeper-%d", idx), conf.Keepers.GasLimit, conf.Keepers.GasPrice)
		if err != nil {
			return nil, err
		}

		keepers = append(keepers, keeper)
	}

	return &Group{
		keepers:  keepers,
		registry: conf.Registry,
		recorder: conf.Recorder,
		checks:   util.NewWorkerGroup[types.CheckResult](conf.Keepers.MaxServiceWorkers),
		logger:   conf.Logger,
	}, nil
}

func (g *Group) Keepers() []*Keeper {
	return append([]*Keeper(nil), g.keepers...)
}

// Addresses returns the keeper sending addresses and their payees in
// matching order.
func (g *Group) Addresses() ([]common.Address, []common.Address) {
	keepers := make([]common.Address, len(g.keepers))
	payees := make([]common.Address, len(g.keepers))

	for idx, keeper := range g.keepers {
		keepers[idx] = keeper.Address
		payees[idx] = keeper.Payee
	}

	return keepers, payees
}

// OnTurn returns the index of the keeper whose turn covers the block.
func (g *Group) OnTurn(block uint64) int {
	turn := uint64(g.registry.GetConfig().BlockCountPerTurn)
	if turn == 0 {
		turn = 1
	}

	return int((block / turn) % uint64(len(g.keepers)))
}

// RunBlock checks every registered upkeep and performs the eligible ones.
// Checks by the keeper on turn run in parallel; performs and any hand-off to
// the following keepers run in upkeep order. It returns the number of
// successful performs.
func (g *Group) RunBlock(ctx context.Context, block uint64) int {
	start := g.OnTurn(block)
	onTurn := g.keepers[start]
	count := g.registry.GetUpkeepCount()

	items := make([]util.WorkItem[types.CheckResult], count)
	for idx := range items {
		id := types.UpkeepIdentifierFromIndex(uint64(idx))

		items[idx] = func(ctx context.Context) (types.CheckResult, error) {
			return g.registry.CheckUpkeep(ctx, types.CallOpts{From: onTurn.Address, Simulate: true}, id)
		}
	}

	checks := g.checks.DoAll(ctx, items)
	performed := 0

	for idx, check := range checks {
		if ctx.Err() != nil {
			return performed
		}

		id := types.UpkeepIdentifierFromIndex(uint64(idx))

		done, ok := g.service(ctx, block, onTurn, id, check.Data, check.Err)
		if ok {
			performed++
		}

		for offset := 1; !done && offset < len(g.keepers); offset++ {
			keeper := g.keepers[(start+offset)%len(g.keepers)]
			result, err := g.registry.CheckUpkeep(ctx, types.CallOpts{From: keeper.Address, Simulate: true}, id)

			done, ok = g.service(ctx, block, keeper, id, result, err)
			if ok {
				performed++
			}
		}
	}

	return performed
}

// Stop waits for running checks and releases the check workers.
func (g *Group) Stop() {
	g.checks.Stop()
}

// service handles a check outcome and, when eligible, performs the upkeep.
// done is false only when another keeper should try the upkeep.
func (g *Group) service(ctx context.Context, block uint64, keeper *Keeper, id types.UpkeepIdentifier, result types.CheckResult, err error) (done bool, ok bool) {
	if err != nil {
		// canceled and unfunded upkeeps are expected; anything else is noise
		// worth keeping in the log
		if !errors.Is(err, types.ErrNotExecutable) {
			g.logger.Printf("check of upkeep %s by %s failed: %s", id, keeper.Name, err)
			g.recorder.RecordError(block, keeper.Address, id, err)
		}

		return true, false
	}
	g.recorder.RecordCheck(block, keeper.Address, result)

	if !result.Eligible {
		return result.FailureReason != types.FailureReasonMustTakeTurns, false
	}

	perform, err := g.registry.PerformUpkeep(ctx, types.TransactOpts{
		From:     keeper.Address,
		GasLimit: keeper.GasLimit,
		GasPrice: keeper.GasPrice,
	}, id, result.PerformData)
	if err != nil {
		g.logger.Printf("perform of upkeep %s by %s failed: %s", id, keeper.Name, err)
		g.recorder.RecordError(block, keeper.Address, id, err)

		return true, false
	}

	g.recorder.RecordPerform(block, keeper.Address, perform)

	return true, perform.Success
}
