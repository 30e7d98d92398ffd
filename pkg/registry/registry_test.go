package registry_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/internal/mocks"
	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func TestRegistry_RegisterUpkeep(t *testing.T) {
	env := newTestEnv(t)
	opts := types.TransactOpts{From: owner}

	tests := []struct {
		name       string
		from       common.Address
		target     common.Address
		executeGas uint32
		err        error
	}{
		{name: "target is not a contract", from: owner, target: common.Address{}, executeGas: executeGas, err: types.ErrNotAContract},
		{name: "execute gas below minimum", from: owner, target: env.target, executeGas: registry.DefaultMinExecuteGas - 1, err: types.ErrGasOutOfRange},
		{name: "execute gas above maximum", from: owner, target: env.target, executeGas: registry.DefaultMaxExecuteGas + 1, err: types.ErrGasOutOfRange},
		{name: "caller is not owner or registrar", from: admin, target: env.target, executeGas: executeGas, err: types.ErrUnauthorized},
		{name: "minimum execute gas", from: owner, target: env.target, executeGas: registry.DefaultMinExecuteGas},
		{name: "maximum execute gas", from: owner, target: env.target, executeGas: registry.DefaultMaxExecuteGas},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			count := env.registry.GetUpkeepCount()

			id, err := env.registry.RegisterUpkeep(env.ctx, types.TransactOpts{From: test.from}, test.target, test.executeGas, admin, nil)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				assert.Equal(t, count, env.registry.GetUpkeepCount())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, types.UpkeepIdentifierFromIndex(count), id)
		})
	}

	t.Run("creates a record of the upkeep", func(t *testing.T) {
		id, err := env.registry.RegisterUpkeep(env.ctx, opts, env.target, executeGas, admin, []byte{0x01, 0x02})
		require.NoError(t, err)

		upkeep, err := env.registry.GetUpkeep(id)
		require.NoError(t, err)

		assert.Equal(t, env.target, upkeep.Target)
		assert.Equal(t, admin, upkeep.Admin)
		assert.Equal(t, executeGas, upkeep.ExecuteGas)
		assert.Equal(t, []byte{0x01, 0x02}, upkeep.CheckData)
		assert.Equal(t, int64(0), upkeep.Balance.Int64())
		assert.Equal(t, types.MaxBlockHeight, upkeep.MaxValidBlocknumber)
		assert.True(t, env.registry.IsActive(id))

		registered := types.FilterLogs[registry.UpkeepRegistered](env.registry.Logs())
		assert.Contains(t, registered, registry.UpkeepRegistered{ID: id, ExecuteGas: executeGas, Admin: admin})
	})

	t.Run("allows the registrar to register", func(t *testing.T) {
		_, err := env.registry.RegisterUpkeep(env.ctx, types.TransactOpts{From: registrar}, env.target, executeGas, admin, nil)
		require.ErrorIs(t, err, types.ErrUnauthorized)

		require.NoError(t, env.registry.SetRegistrar(env.ctx, opts, registrar))
		assert.Equal(t, registrar, env.registry.GetRegistrar())

		_, err = env.registry.RegisterUpkeep(env.ctx, types.TransactOpts{From: registrar}, env.target, executeGas, admin, nil)
		assert.NoError(t, err)
	})
}

func TestRegistry_AddFunds(t *testing.T) {
	t.Run("reverts if the upkeep does not exist", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.token.Approve(env.ctx, owner, env.registry.Address(), ether(1)))

		err := env.registry.AddFunds(env.ctx, types.TransactOpts{From: owner}, types.UpkeepIdentifierFromIndex(1), ether(1))

		assert.ErrorIs(t, err, types.ErrUnknownUpkeep)
	})

	t.Run("adds to the balance of the upkeep", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(1))

		assert.Equal(t, ether(1), env.upkeep(t).Balance)
		assert.Equal(t, ether(1), env.balanceOf(t, env.registry.Address()))
		assert.Equal(t, ether(999), env.balanceOf(t, owner))
	})

	t.Run("reverts without allowance and leaves the balance", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.AddFunds(env.ctx, types.TransactOpts{From: owner}, env.id, ether(1))

		assert.ErrorIs(t, err, types.ErrTransferFailed)
		assert.Equal(t, int64(0), env.upkeep(t).Balance.Int64())
		assert.Empty(t, types.FilterLogs[registry.FundsAdded](env.registry.Logs()))
	})

	t.Run("reverts for canceled upkeeps", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: admin}, env.id))
		require.NoError(t, env.token.Approve(env.ctx, owner, env.registry.Address(), ether(1)))

		err := env.registry.AddFunds(env.ctx, types.TransactOpts{From: owner}, env.id, ether(1))

		assert.ErrorIs(t, err, types.ErrAlreadyCanceled)
	})
}

func TestRegistry_OnTokenTransfer(t *testing.T) {
	t.Run("funds the upkeep through transferAndCall", func(t *testing.T) {
		env := newTestEnv(t)

		data, err := chain.EncodeUpkeepID(env.id)
		require.NoError(t, err)

		require.NoError(t, env.token.TransferAndCall(env.ctx, admin, env.registry.Address(), ether(5), data))

		assert.Equal(t, ether(5), env.upkeep(t).Balance)
		assert.Equal(t, []registry.FundsAdded{{ID: env.id, From: admin, Amount: ether(5)}},
			types.FilterLogs[registry.FundsAdded](env.registry.Logs()))
	})

	t.Run("reverts the transfer for unknown upkeeps", func(t *testing.T) {
		env := newTestEnv(t)

		data, err := chain.EncodeUpkeepID(types.UpkeepIdentifierFromIndex(7))
		require.NoError(t, err)

		err = env.token.TransferAndCall(env.ctx, admin, env.registry.Address(), ether(5), data)

		assert.ErrorIs(t, err, types.ErrUnknownUpkeep)
		assert.Equal(t, ether(1_000), env.balanceOf(t, admin))
	})

	t.Run("reverts for malformed data", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.token.TransferAndCall(env.ctx, admin, env.registry.Address(), ether(5), []byte{0x01})

		assert.ErrorIs(t, err, types.ErrInvalidPayload)
	})

	t.Run("only callable by the token", func(t *testing.T) {
		env := newTestEnv(t)

		data, err := chain.EncodeUpkeepID(env.id)
		require.NoError(t, err)

		err = env.registry.OnTokenTransfer(env.ctx, types.TransactOpts{From: admin}, admin, ether(5), data)

		assert.ErrorIs(t, err, types.ErrOnlyToken)
	})
}

func TestRegistry_CancelUpkeep(t *testing.T) {
	t.Run("reverts for unknown upkeeps", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: owner}, types.UpkeepIdentifierFromIndex(1))

		assert.ErrorIs(t, err, types.ErrUnknownUpkeep)
	})

	t.Run("reverts if not called by owner or admin", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: keeper1}, env.id)

		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("owner cancellation is immediate", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(1))
		env.mock.SetCanPerform(true)

		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: owner}, env.id))

		assert.False(t, env.registry.IsActive(env.id))
		assert.Equal(t, env.chain.BlockNumber(), env.upkeep(t).MaxValidBlocknumber)
		assert.Equal(t, []types.UpkeepIdentifier{env.id}, env.registry.GetCanceledUpkeepList())

		_, err := env.perform(keeper1, extraGas)
		assert.ErrorIs(t, err, types.ErrNotExecutable)

		err = env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: owner}, env.id)
		assert.ErrorIs(t, err, types.ErrAlreadyCanceled)
	})

	t.Run("admin cancellation is delayed", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(10))
		env.mock.SetCanPerform(true)

		start := env.chain.BlockNumber()

		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: admin}, env.id))
		assert.Equal(t, start+registry.CancellationDelay, env.upkeep(t).MaxValidBlocknumber)

		err := env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: admin}, env.id)
		assert.ErrorIs(t, err, types.ErrAlreadyCanceled)

		env.chain.MineN(int(registry.CancellationDelay) - 1)
		assert.True(t, env.registry.IsActive(env.id))

		_, err = env.perform(keeper1, extraGas)
		assert.NoError(t, err)

		env.chain.Mine()
		assert.False(t, env.registry.IsActive(env.id))

		_, err = env.perform(keeper2, extraGas)
		assert.ErrorIs(t, err, types.ErrNotExecutable)

		canceled := types.FilterLogs[registry.UpkeepCanceled](env.registry.Logs())
		assert.Equal(t, []registry.UpkeepCanceled{{ID: env.id, AtBlockHeight: start + registry.CancellationDelay}}, canceled)
	})

	t.Run("owner can shorten a pending admin cancellation", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: admin}, env.id))
		env.chain.MineN(5)
		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: owner}, env.id))

		assert.False(t, env.registry.IsActive(env.id))
		assert.Len(t, env.registry.GetCanceledUpkeepList(), 1, "canceled list should not repeat ids")
	})
}

func TestRegistry_WithdrawFunds(t *testing.T) {
	recipient := common.HexToAddress("0x6000000000000000000000000000000000000001")

	t.Run("reverts if the upkeep is not canceled", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(1))

		err := env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(1), recipient)

		assert.ErrorIs(t, err, types.ErrNotCanceled)
	})

	t.Run("reverts while the admin cancellation is pending", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(1))
		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: admin}, env.id))

		err := env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(1), recipient)

		assert.ErrorIs(t, err, types.ErrNotCanceled)
	})

	t.Run("withdraws partial and full amounts", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(3))
		require.NoError(t, env.registry.CancelUpkeep(env.ctx, types.TransactOpts{From: owner}, env.id))

		err := env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: owner}, env.id, ether(1), recipient)
		require.ErrorIs(t, err, types.ErrUnauthorized)

		err = env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(4), recipient)
		require.ErrorIs(t, err, types.ErrInsufficientBalance)

		err = env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(1), common.Address{})
		require.ErrorIs(t, err, types.ErrInvalidRecipient)

		require.NoError(t, env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(1), recipient))
		assert.Equal(t, ether(2), env.upkeep(t).Balance)

		require.NoError(t, env.registry.WithdrawFunds(env.ctx, types.TransactOpts{From: admin}, env.id, ether(2), recipient))
		assert.Equal(t, int64(0), env.upkeep(t).Balance.Int64())
		assert.Equal(t, ether(3), env.balanceOf(t, recipient))
	})
}

func TestRegistry_WithdrawFunds_RevertsOnTransferFailure(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	ctx := context.Background()
	sim := chain.NewSimulatedChain(1, genesis, 0, logger)

	registryAddr := common.HexToAddress("0x7000000000000000000000000000000000000002")

	token := new(mocks.MockToken)
	token.On("TransferFrom", mock.Anything, registryAddr, owner, registryAddr, ether(2)).Return(nil)
	token.On("Transfer", mock.Anything, registryAddr, admin, ether(1)).Return(fmt.Errorf("transfer rejected"))

	reg, err := registry.New(registry.Options{
		Address: registryAddr,
		Owner:   owner,
		Chain:   sim,
		Token:   token,
		Config:  registry.DefaultConfig(),
		Logger:  logger,
	})
	require.NoError(t, err)

	target := common.HexToAddress("0x7000000000000000000000000000000000000003")
	require.NoError(t, sim.Deploy(target, mocks.NewUpkeepMock()))

	id, err := reg.RegisterUpkeep(ctx, types.TransactOpts{From: owner}, target, executeGas, admin, nil)
	require.NoError(t, err)

	require.NoError(t, reg.AddFunds(ctx, types.TransactOpts{From: owner}, id, ether(2)))
	require.NoError(t, reg.CancelUpkeep(ctx, types.TransactOpts{From: owner}, id))

	err = reg.WithdrawFunds(ctx, types.TransactOpts{From: admin}, id, ether(1), admin)
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	upkeep, err := reg.GetUpkeep(id)
	require.NoError(t, err)

	assert.Equal(t, ether(2), upkeep.Balance)
	assert.Empty(t, types.FilterLogs[registry.FundsWithdrawn](reg.Logs()))

	token.AssertExpectations(t)
}

func TestRegistry_SetKeepers(t *testing.T) {
	opts := types.TransactOpts{From: owner}

	t.Run("only callable by owner", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.SetKeepers(env.ctx, types.TransactOpts{From: admin}, []common.Address{keeper1}, []common.Address{payee1})

		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("rejects invalid lists", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1, keeper2}, []common.Address{payee1})
		assert.ErrorIs(t, err, types.ErrInvalidKeeperList)

		err = env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1, keeper1}, []common.Address{payee1, payee1})
		assert.ErrorIs(t, err, types.ErrInvalidKeeperList)

		err = env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1}, []common.Address{{}})
		assert.ErrorIs(t, err, types.ErrInvalidKeeperList)
	})

	t.Run("reverts when changing an existing payee", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1, keeper2}, []common.Address{payee1, payee3})

		assert.ErrorIs(t, err, types.ErrPayeeMismatch)
		assert.Equal(t, []common.Address{keeper1, keeper2, keeper3}, env.registry.GetKeeperList())
	})

	t.Run("deactivates removed keepers and keeps their balance", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, ether(10))

		_, err := env.perform(keeper3, extraGas)
		require.NoError(t, err)

		earned := env.keeperBalance(t, keeper3)
		require.Equal(t, 1, earned.Sign())

		require.NoError(t, env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1, keeper2}, []common.Address{payee1, payee2}))

		info, ok := env.registry.GetKeeperInfo(keeper3)
		require.True(t, ok)
		assert.False(t, info.Active)
		assert.Equal(t, earned, info.Balance)
		assert.Equal(t, []common.Address{keeper1, keeper2}, env.registry.GetKeeperList())

		env.chain.Mine()

		_, err = env.perform(keeper3, extraGas)
		assert.ErrorIs(t, err, types.ErrNotAKeeper)

		removed := types.FilterLogs[registry.KeeperRemoved](env.registry.Logs())
		assert.Equal(t, []registry.KeeperRemoved{{Keeper: keeper3}}, removed)

		require.NoError(t, env.registry.SetKeepers(env.ctx, opts, []common.Address{keeper1, keeper2, keeper3}, []common.Address{payee1, payee2, payee3}))

		info, _ = env.registry.GetKeeperInfo(keeper3)
		assert.True(t, info.Active)
	})
}

func TestRegistry_WithdrawPayment(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, ether(10))

	_, err := env.perform(keeper1, extraGas)
	require.NoError(t, err)

	earned := env.keeperBalance(t, keeper1)
	half := new(big.Int).Div(earned, big.NewInt(2))

	err = env.registry.WithdrawPayment(env.ctx, types.TransactOpts{From: keeper1}, keeper1, half, keeper1)
	assert.ErrorIs(t, err, types.ErrUnauthorized, "keeper is not its own payee")

	err = env.registry.WithdrawPayment(env.ctx, types.TransactOpts{From: payee1}, keeper1, new(big.Int).Add(earned, big.NewInt(1)), payee1)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	require.NoError(t, env.registry.WithdrawPayment(env.ctx, types.TransactOpts{From: payee1}, keeper1, half, payee1))

	assert.Equal(t, new(big.Int).Sub(earned, half), env.keeperBalance(t, keeper1))
	assert.Equal(t, half, env.balanceOf(t, payee1))

	withdrawn := types.FilterLogs[registry.PaymentWithdrawn](env.registry.Logs())
	assert.Equal(t, []registry.PaymentWithdrawn{{Keeper: keeper1, Amount: half, To: payee1, Payee: payee1}}, withdrawn)
}

func TestRegistry_Payeeship(t *testing.T) {
	env := newTestEnv(t)
	candidate := common.HexToAddress("0x8000000000000000000000000000000000000001")

	err := env.registry.TransferPayeeship(env.ctx, types.TransactOpts{From: keeper1}, keeper1, candidate)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	err = env.registry.TransferPayeeship(env.ctx, types.TransactOpts{From: payee1}, keeper1, payee1)
	assert.ErrorIs(t, err, types.ErrSelfTransfer)

	require.NoError(t, env.registry.TransferPayeeship(env.ctx, types.TransactOpts{From: payee1}, keeper1, candidate))
	require.NoError(t, env.registry.TransferPayeeship(env.ctx, types.TransactOpts{From: payee1}, keeper1, candidate))
	assert.Len(t, types.FilterLogs[registry.PayeeshipTransferRequested](env.registry.Logs()), 1, "re-proposing should not emit")

	err = env.registry.AcceptPayeeship(env.ctx, types.TransactOpts{From: payee2}, keeper1)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, env.registry.AcceptPayeeship(env.ctx, types.TransactOpts{From: candidate}, keeper1))

	info, ok := env.registry.GetKeeperInfo(keeper1)
	require.True(t, ok)
	assert.Equal(t, candidate, info.Payee)
	assert.Equal(t, common.Address{}, info.ProposedPayee)

	transferred := types.FilterLogs[registry.PayeeshipTransferred](env.registry.Logs())
	assert.Equal(t, []registry.PayeeshipTransferred{{Keeper: keeper1, From: payee1, To: candidate}}, transferred)

	err = env.registry.SetKeepers(env.ctx, types.TransactOpts{From: owner}, []common.Address{keeper1}, []common.Address{payee1})
	assert.ErrorIs(t, err, types.ErrPayeeMismatch, "owner cannot restore the old payee")
}

func TestRegistry_Ownership(t *testing.T) {
	env := newTestEnv(t)
	next := common.HexToAddress("0x9000000000000000000000000000000000000001")

	err := env.registry.TransferOwnership(env.ctx, types.TransactOpts{From: admin}, next)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, env.registry.TransferOwnership(env.ctx, types.TransactOpts{From: owner}, next))
	assert.Equal(t, owner, env.registry.Owner())

	err = env.registry.AcceptOwnership(env.ctx, types.TransactOpts{From: admin})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, env.registry.AcceptOwnership(env.ctx, types.TransactOpts{From: next}))
	assert.Equal(t, next, env.registry.Owner())

	err = env.registry.Pause(env.ctx, types.TransactOpts{From: owner})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestRegistry_SetConfig(t *testing.T) {
	env := newTestEnv(t)

	conf := registry.DefaultConfig()
	conf.PaymentPremiumPPB = 0

	err := env.registry.SetConfig(env.ctx, types.TransactOpts{From: admin}, conf)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	invalid := conf
	invalid.BlockCountPerTurn = 0

	err = env.registry.SetConfig(env.ctx, types.TransactOpts{From: owner}, invalid)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	require.NoError(t, env.registry.SetConfig(env.ctx, types.TransactOpts{From: owner}, conf))
	assert.Equal(t, uint32(0), env.registry.GetConfig().PaymentPremiumPPB)

	base := registry.ComputeMaxPayment(executeGas, gasWei, linkEth, 0)
	assert.Equal(t, base, env.registry.GetMaxPaymentForGas(env.ctx, executeGas))
}

func TestRegistry_RecoverFunds(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, ether(5))

	require.NoError(t, env.token.Transfer(env.ctx, admin, env.registry.Address(), ether(2)))

	_, err := env.registry.RecoverFunds(env.ctx, types.TransactOpts{From: admin})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	recovered, err := env.registry.RecoverFunds(env.ctx, types.TransactOpts{From: owner})
	require.NoError(t, err)

	assert.Equal(t, ether(2), recovered)
	assert.Equal(t, ether(5), env.balanceOf(t, env.registry.Address()))
	assert.Equal(t, ether(5), env.upkeep(t).Balance)
}
