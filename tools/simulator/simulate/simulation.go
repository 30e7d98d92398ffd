package simulate

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/smartcontractkit/keeper-registry/internal/feeds"
	"github.com/smartcontractkit/keeper-registry/internal/link"
	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/registrar"
	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/node"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate/upkeep"
	simtel "github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

const (
	BlocksNamespace     = "blocks"
	RegisteredNamespace = "upkeeps registered"

	// blocks of chain history kept in the report
	reportedBlocks = 64
)

var (
	ErrSimulationSetup   = fmt.Errorf("simulation setup failure")
	ErrUnexpectedOutcome = fmt.Errorf("unexpected upkeep outcome")

	// chain time of the genesis block
	GenesisTime = time.Unix(1_700_000_000, 0)

	ownerAddress = deterministicAddress("registry owner")
	adminAddress = deterministicAddress("upkeep admin")
)

// Progress receives block and registration progress.
type Progress interface {
	Register(namespace string, total int64) error
	Increment(namespace string, count int64)
}

// Simulation deploys a registry with its token, feeds, registrar and keepers
// on a simulated chain and drives them block by block.
type Simulation struct {
	plan      config.SimulationPlan
	chain     *chain.SimulatedChain
	token     *link.Token
	gasFeed   *feeds.MockAggregator
	linkFeed  *feeds.MockAggregator
	registry  *registry.Registry
	registrar *registrar.Registrar
	group     *node.Group
	collector *simtel.PerformCollector
	progress  Progress
	logger    *log.Logger

	scheduled   map[uint64][]upkeep.SimulatedUpkeep
	feedUpdates map[uint64][]config.FeedUpdateEvent
	frozen      map[string]bool
	jitter      *distuv.Normal
	contracts   map[types.UpkeepIdentifier]*upkeep.Contract
}

func New(plan config.SimulationPlan, collector *simtel.PerformCollector, progress Progress, logger *log.Logger) (*Simulation, error) {
	ctx := context.Background()
	logger = telemetry.WrapLogger(logger, "simulation")

	generated, err := upkeep.GenerateAllUpkeeps(plan)
	if err != nil {
		return nil, err
	}

	sim := chain.NewSimulatedChain(plan.Blocks.Genesis, GenesisTime, plan.Blocks.Cadence.Value(), logger)

	token := link.New(sim.NewContractAddress(ownerAddress), sim, logger)
	if err := sim.Deploy(token.Address(), token); err != nil {
		return nil, err
	}

	gasFeed := feeds.NewMockAggregator(0, plan.Feeds.FastGasWei, sim.Timestamp())
	linkFeed := feeds.NewMockAggregator(18, plan.Feeds.LinkNative, sim.Timestamp())

	reg, err := registry.New(registry.Options{
		Address:        sim.NewContractAddress(ownerAddress),
		Owner:          ownerAddress,
		Chain:          sim,
		Token:          token,
		FastGasFeed:    gasFeed,
		LinkNativeFeed: linkFeed,
		Config:         plan.Registry,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationSetup, err)
	}

	if err := sim.Deploy(reg.Address(), reg); err != nil {
		return nil, err
	}

	rgr, err := registrar.New(registrar.Options{
		Address:      sim.NewContractAddress(ownerAddress),
		Owner:        ownerAddress,
		Chain:        sim,
		Token:        token,
		MinLINKJuels: plan.Registrar.MinLINKJuels,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationSetup, err)
	}

	if err := sim.Deploy(rgr.Address(), rgr); err != nil {
		return nil, err
	}

	owner := types.TransactOpts{From: ownerAddress}

	if err := reg.SetRegistrar(ctx, owner, rgr.Address()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationSetup, err)
	}

	minJuels := plan.Registrar.MinLINKJuels
	if minJuels == nil {
		minJuels = registrar.DefaultMinLINKJuels
	}

	if err := rgr.SetRegistrationConfig(ctx, owner, registrar.Config{
		AutoApproveEnabled: plan.Registrar.AutoApprove,
		WindowSizeInBlocks: plan.Registrar.WindowSizeInBlocks,
		AllowedPerWindow:   plan.Registrar.AllowedPerWindow,
		KeeperRegistry:     reg.Address(),
		MinLINKJuels:       minJuels,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationSetup, err)
	}

	group, err := node.NewGroup(node.GroupConfig{
		Keepers:  plan.Keepers,
		Registry: reg,
		Recorder: collector,
		Logger:   telemetry.WrapLogger(logger, "keepers"),
	})
	if err != nil {
		return nil, err
	}

	keepers, payees := group.Addresses()
	if err := reg.SetKeepers(ctx, owner, keepers, payees); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationSetup, err)
	}

	simulation := &Simulation{
		plan:        plan,
		chain:       sim,
		token:       token,
		gasFeed:     gasFeed,
		linkFeed:    linkFeed,
		registry:    reg,
		registrar:   rgr,
		group:       group,
		collector:   collector,
		progress:    progress,
		logger:      logger,
		scheduled:   make(map[uint64][]upkeep.SimulatedUpkeep),
		feedUpdates: make(map[uint64][]config.FeedUpdateEvent),
		frozen:      make(map[string]bool),
		contracts:   make(map[types.UpkeepIdentifier]*upkeep.Contract),
	}

	if plan.Feeds.GasJitter > 0 {
		simulation.jitter = &distuv.Normal{Mu: 0, Sigma: plan.Feeds.GasJitter}
	}

	funding := new(big.Int)

	for _, simulated := range generated {
		block := max(simulated.CreateInBlock, plan.Blocks.Genesis)

		simulation.scheduled[block] = append(simulation.scheduled[block], simulated)
		funding.Add(funding, simulated.Funding)
	}

	for _, event := range plan.FeedUpdates {
		block := max(event.TriggerBlock, plan.Blocks.Genesis)

		simulation.feedUpdates[block] = append(simulation.feedUpdates[block], event)
	}

	token.Mint(adminAddress, funding)

	if progress != nil {
		if err := progress.Register(BlocksNamespace, int64(plan.Blocks.Duration)); err != nil {
			return nil, err
		}

		if err := progress.Register(RegisteredNamespace, int64(len(generated))); err != nil {
			return nil, err
		}
	}

	return simulation, nil
}

// Run mines the configured number of blocks. In each block feed updates
// apply first, then scheduled registrations, then keeper work.
func (s *Simulation) Run(ctx context.Context) (Report, error) {
	for i := 0; i < s.plan.Blocks.Duration; i++ {
		if err := ctx.Err(); err != nil {
			return s.report(), err
		}

		height := s.chain.BlockNumber()

		if err := s.updateFeeds(ctx, height); err != nil {
			return s.report(), err
		}

		for _, simulated := range s.scheduled[height] {
			if err := s.register(ctx, simulated); err != nil {
				return s.report(), err
			}

			s.increment(RegisteredNamespace)
		}

		performed := s.group.RunBlock(ctx, height)
		if performed > 0 {
			s.logger.Printf("block %d: %d upkeeps performed", height, performed)
		}

		s.increment(BlocksNamespace)
		s.chain.Mine()
	}

	return s.report(), nil
}

// Close waits for in-flight keeper work. The simulation cannot run after it
// is closed.
func (s *Simulation) Close() {
	s.group.Stop()
}

func (s *Simulation) Registry() *registry.Registry {
	return s.registry
}

func (s *Simulation) Registrar() *registrar.Registrar {
	return s.registrar
}

func (s *Simulation) Token() *link.Token {
	return s.token
}

func (s *Simulation) Group() *node.Group {
	return s.group
}

// register deploys the upkeep contract and sends its registration with
// funding through the registrar. Requests left pending are approved by the
// owner in the same block.
func (s *Simulation) register(ctx context.Context, simulated upkeep.SimulatedUpkeep) error {
	contract := upkeep.NewContract(s.chain, simulated)
	target := s.chain.NewContractAddress(adminAddress)

	if err := s.chain.Deploy(target, contract); err != nil {
		return err
	}

	req := registrar.Request{
		Name:           simulated.Name,
		UpkeepContract: target,
		GasLimit:       simulated.ExecuteGas,
		AdminAddress:   adminAddress,
		Amount:         new(big.Int).Set(simulated.Funding),
	}

	data, err := registrar.EncodeRegisterCall(req)
	if err != nil {
		return err
	}

	if err := s.token.TransferAndCall(ctx, adminAddress, s.registrar.Address(), simulated.Funding, data); err != nil {
		return fmt.Errorf("registration of %s: %w", simulated.Name, err)
	}

	hash, err := req.Hash()
	if err != nil {
		return err
	}

	if _, pending := s.registrar.GetPendingRequest(hash); pending {
		if err := s.registrar.Approve(ctx, types.TransactOpts{From: ownerAddress}, req, hash); err != nil {
			return fmt.Errorf("approval of %s: %w", simulated.Name, err)
		}
	}

	approved := types.FilterLogs[registrar.RegistrationApproved](s.registrar.Logs())
	for idx := len(approved) - 1; idx >= 0; idx-- {
		if approved[idx].Hash == hash {
			s.contracts[approved[idx].UpkeepID] = contract
			s.logger.Printf("registered %s as upkeep %s", simulated.Name, approved[idx].UpkeepID)

			return nil
		}
	}

	return fmt.Errorf("registration of %s was not approved", simulated.Name)
}

// updateFeeds applies scheduled feed events, then refreshes every feed that
// is not frozen.
func (s *Simulation) updateFeeds(ctx context.Context, height uint64) error {
	now := s.chain.Timestamp()

	for _, event := range s.feedUpdates[height] {
		feed := s.feed(event.Feed)

		if event.Answer != nil {
			feed.UpdateAnswer(event.Answer, now)
		}

		s.frozen[event.Feed] = event.Freeze
		s.logger.Printf("feed %s updated at block %d (frozen: %t)", event.Feed, height, event.Freeze)
	}

	for _, name := range []string{config.FastGasFeed, config.LinkNativeFeed} {
		if s.frozen[name] {
			continue
		}

		feed := s.feed(name)

		round, err := feed.LatestRoundData(ctx)
		if err != nil {
			return err
		}

		answer := round.Answer
		if name == config.FastGasFeed && s.jitter != nil {
			answer = applyJitter(answer, s.jitter.Rand())
		}

		feed.UpdateAnswer(answer, now)
	}

	return nil
}

func (s *Simulation) feed(name string) *feeds.MockAggregator {
	if name == config.LinkNativeFeed {
		return s.linkFeed
	}

	return s.gasFeed
}

func (s *Simulation) increment(namespace string) {
	if s.progress != nil {
		s.progress.Increment(namespace, 1)
	}
}

// UpkeepReport is the outcome for a single registered upkeep.
type UpkeepReport struct {
	Name     string
	ID       types.UpkeepIdentifier
	Expected bool
	Performs []uint64
	Missed   []uint64
	Balance  *big.Int
	// LastPerformedAt is zero when the upkeep never performed or the block
	// is no longer in the chain history
	LastPerformedAt time.Time
}

// Report collects the upkeep outcomes of a run with the keeper telemetry
// summary and the most recent blocks, newest first.
type Report struct {
	Upkeeps []UpkeepReport
	Summary simtel.Summary
	Blocks  []chain.Block
}

// Unexpected lists upkeeps whose outcome contradicts their expectation:
// expected upkeeps that missed an eligibility and unexpected upkeeps that
// performed.
func (r Report) Unexpected() []UpkeepReport {
	unexpected := make([]UpkeepReport, 0)

	for _, upkeep := range r.Upkeeps {
		if upkeep.Expected && len(upkeep.Missed) > 0 {
			unexpected = append(unexpected, upkeep)
		}

		if !upkeep.Expected && len(upkeep.Performs) > 0 {
			unexpected = append(unexpected, upkeep)
		}
	}

	return unexpected
}

// Err returns ErrUnexpectedOutcome when any upkeep contradicts its
// expectation.
func (r Report) Err() error {
	if unexpected := r.Unexpected(); len(unexpected) > 0 {
		return fmt.Errorf("%w: %d upkeeps did not meet expectations", ErrUnexpectedOutcome, len(unexpected))
	}

	return nil
}

func (s *Simulation) report() Report {
	report := Report{
		Upkeeps: make([]UpkeepReport, 0, len(s.contracts)),
		Summary: s.collector.Summary(),
		Blocks:  s.chain.History(reportedBlocks),
	}

	height := s.chain.BlockNumber()

	for id, contract := range s.contracts {
		simulated := contract.Upkeep()
		balance := new(big.Int)

		if registered, err := s.registry.GetUpkeep(id); err == nil {
			balance = registered.Balance
		}

		performs := contract.Performs()

		var lastPerformedAt time.Time
		if len(performs) > 0 {
			if block, ok := s.chain.BlockByNumber(performs[len(performs)-1]); ok {
				lastPerformedAt = block.Timestamp
			}
		}

		report.Upkeeps = append(report.Upkeeps, UpkeepReport{
			Name:            simulated.Name,
			ID:              id,
			Expected:        simulated.Expected,
			Performs:        performs,
			Missed:          contract.Missed(height),
			Balance:         balance,
			LastPerformedAt: lastPerformedAt,
		})
	}

	sort.Slice(report.Upkeeps, func(i, j int) bool {
		return report.Upkeeps[i].ID.BigInt().Cmp(report.Upkeeps[j].ID.BigInt()) < 0
	})

	return report
}

// applyJitter moves answer by the relative change, keeping it positive.
func applyJitter(answer *big.Int, change float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(answer), big.NewFloat(1+change))

	next, _ := scaled.Int(nil)
	if next.Sign() <= 0 {
		return big.NewInt(1)
	}

	return next
}

func deterministicAddress(seed string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(seed))[12:])
}
