package registry_test

import (
	"context"
	"io"
	"log"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/internal/feeds"
	"github.com/smartcontractkit/keeper-registry/internal/link"
	"github.com/smartcontractkit/keeper-registry/internal/mocks"
	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	linkEth    = big.NewInt(30_000_000_000_000_000)
	gasWei     = big.NewInt(100_000_000_000)
	executeGas = uint32(100_000)
	extraGas   = uint64(250_000)
	genesis    = time.Unix(1_700_000_000, 0)

	owner     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	admin     = common.HexToAddress("0x1000000000000000000000000000000000000002")
	keeper1   = common.HexToAddress("0x2000000000000000000000000000000000000001")
	keeper2   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	keeper3   = common.HexToAddress("0x2000000000000000000000000000000000000003")
	payee1    = common.HexToAddress("0x3000000000000000000000000000000000000001")
	payee2    = common.HexToAddress("0x3000000000000000000000000000000000000002")
	payee3    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	nonkeeper = common.HexToAddress("0x4000000000000000000000000000000000000001")
	registrar = common.HexToAddress("0x5000000000000000000000000000000000000001")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type testEnv struct {
	ctx      context.Context
	chain    *chain.SimulatedChain
	token    *link.Token
	gasFeed  *feeds.MockAggregator
	linkFeed *feeds.MockAggregator
	registry *registry.Registry
	mock     *mocks.UpkeepMock
	target   common.Address
	id       types.UpkeepIdentifier
}

// newTestEnv deploys a registry with three keepers and one registered,
// unfunded upkeep targeting an UpkeepMock.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	ctx := context.Background()

	sim := chain.NewSimulatedChain(1, genesis, 12*time.Second, logger)
	token := link.New(sim.NewContractAddress(owner), sim, logger)
	gasFeed := feeds.NewMockAggregator(0, gasWei, genesis)
	linkFeed := feeds.NewMockAggregator(9, linkEth, genesis)

	require.NoError(t, sim.Deploy(token.Address(), token))

	reg, err := registry.New(registry.Options{
		Address:        sim.NewContractAddress(owner),
		Owner:          owner,
		Chain:          sim,
		Token:          token,
		FastGasFeed:    gasFeed,
		LinkNativeFeed: linkFeed,
		Config:         registry.DefaultConfig(),
		Logger:         logger,
	})
	require.NoError(t, err)
	require.NoError(t, sim.Deploy(reg.Address(), reg))

	upkeep := mocks.NewUpkeepMock()
	target := sim.NewContractAddress(admin)
	require.NoError(t, sim.Deploy(target, upkeep))

	require.NoError(t, reg.SetKeepers(ctx, types.TransactOpts{From: owner},
		[]common.Address{keeper1, keeper2, keeper3},
		[]common.Address{payee1, payee2, payee3}))

	id, err := reg.RegisterUpkeep(ctx, types.TransactOpts{From: owner}, target, executeGas, admin, []byte{0x00})
	require.NoError(t, err)

	token.Mint(owner, ether(1_000))
	token.Mint(admin, ether(1_000))

	return &testEnv{
		ctx:      ctx,
		chain:    sim,
		token:    token,
		gasFeed:  gasFeed,
		linkFeed: linkFeed,
		registry: reg,
		mock:     upkeep,
		target:   target,
		id:       id,
	}
}

func (e *testEnv) fund(t *testing.T, amount *big.Int) {
	t.Helper()

	require.NoError(t, e.token.Approve(e.ctx, owner, e.registry.Address(), amount))
	require.NoError(t, e.registry.AddFunds(e.ctx, types.TransactOpts{From: owner}, e.id, amount))
}

func (e *testEnv) perform(from common.Address, gas uint64) (types.PerformResult, error) {
	return e.registry.PerformUpkeep(e.ctx, types.TransactOpts{From: from, GasLimit: gas}, e.id, []byte("data"))
}

func (e *testEnv) upkeep(t *testing.T) types.Upkeep {
	t.Helper()

	upkeep, err := e.registry.GetUpkeep(e.id)
	require.NoError(t, err)

	return upkeep
}

func (e *testEnv) keeperBalance(t *testing.T, keeper common.Address) *big.Int {
	t.Helper()

	info, ok := e.registry.GetKeeperInfo(keeper)
	require.True(t, ok)

	return info.Balance
}

func (e *testEnv) balanceOf(t *testing.T, addr common.Address) *big.Int {
	t.Helper()

	balance, err := e.token.BalanceOf(e.ctx, addr)
	require.NoError(t, err)

	return balance
}

// callbackTarget is a target contract that calls back into the registry from
// its check and perform.
type callbackTarget struct {
	onCheck   func(ctx context.Context) error
	onPerform func(ctx context.Context) error
}

func (c *callbackTarget) CheckUpkeep(ctx context.Context, _ types.GasMeter, _ []byte) (bool, []byte, error) {
	if c.onCheck != nil {
		if err := c.onCheck(ctx); err != nil {
			return false, nil, err
		}
	}

	return true, []byte("callback"), nil
}

func (c *callbackTarget) PerformUpkeep(ctx context.Context, _ types.GasMeter, _ []byte) error {
	if c.onPerform == nil {
		return nil
	}

	return c.onPerform(ctx)
}

// register deploys target, registers it and funds it with amount.
func (e *testEnv) register(t *testing.T, target types.KeeperCompatible, amount *big.Int) types.UpkeepIdentifier {
	t.Helper()

	addr := e.chain.NewContractAddress(admin)
	require.NoError(t, e.chain.Deploy(addr, target))

	id, err := e.registry.RegisterUpkeep(e.ctx, types.TransactOpts{From: owner}, addr, executeGas, admin, nil)
	require.NoError(t, err)

	require.NoError(t, e.token.Approve(e.ctx, owner, e.registry.Address(), amount))
	require.NoError(t, e.registry.AddFunds(e.ctx, types.TransactOpts{From: owner}, id, amount))

	return id
}

// returnsWithin fails the test if fn blocks longer than two seconds.
func returnsWithin(t *testing.T, fn func()) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry call did not return")
	}
}
