package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

type codeAt map[common.Address]any

func (c codeAt) BlockNumber() uint64 { return 1 }

func (c codeAt) Timestamp() time.Time { return time.Unix(0, 0) }

func (c codeAt) CodeAt(addr common.Address) (any, bool) {
	v, ok := c[addr]
	return v, ok
}

func TestKeeperDirectory_RevertRestoresState(t *testing.T) {
	keeper := common.HexToAddress("0x01")
	payee := common.HexToAddress("0x02")
	other := common.HexToAddress("0x03")

	dir := NewKeeperDirectory()

	j := util.NewJournal()
	require.NoError(t, dir.SetKeepers(j, []common.Address{keeper}, []common.Address{payee}))
	require.NoError(t, dir.Credit(j, keeper, big.NewInt(10)))
	j.Commit()

	j = util.NewJournal()
	require.NoError(t, dir.SetKeepers(j, []common.Address{other}, []common.Address{payee}))
	require.NoError(t, dir.Withdraw(j, keeper, payee, payee, big.NewInt(4)))
	require.NoError(t, dir.TransferPayeeship(j, keeper, payee, other))

	assert.False(t, dir.IsActive(keeper))
	assert.True(t, dir.IsActive(other))

	j.Revert()

	assert.True(t, dir.IsActive(keeper))
	assert.False(t, dir.IsActive(other))
	assert.Equal(t, []common.Address{keeper}, dir.List())

	_, ok := dir.Info(other)
	assert.False(t, ok, "new keeper record should be removed")

	info, ok := dir.Info(keeper)
	require.True(t, ok)
	assert.Equal(t, int64(10), info.Balance.Int64())
	assert.Equal(t, common.Address{}, info.ProposedPayee)
}

func TestUpkeepStore_RevertRestoresState(t *testing.T) {
	target := common.HexToAddress("0x10")
	admin := common.HexToAddress("0x11")
	keeper := common.HexToAddress("0x12")

	store := NewUpkeepStore()
	chain := codeAt{target: struct{}{}}

	j := util.NewJournal()
	id, err := store.Register(j, chain, DefaultConfig(), target, 100_000, admin, nil)
	require.NoError(t, err)
	require.NoError(t, store.AddFunds(j, id, admin, big.NewInt(100)))
	assert.Len(t, j.Commit(), 2)

	j = util.NewJournal()
	require.NoError(t, store.Charge(j, id, keeper, big.NewInt(40), 5))
	_, err = store.Cancel(j, id, admin, false, 5)
	require.NoError(t, err)
	_, err = store.Register(j, chain, DefaultConfig(), target, 100_000, admin, nil)
	require.NoError(t, err)

	j.Revert()

	upkeep, err := store.Get(id)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), store.Count())
	assert.Equal(t, int64(100), upkeep.Balance.Int64())
	assert.Equal(t, int64(0), upkeep.AmountSpent.Int64())
	assert.Equal(t, common.Address{}, upkeep.LastKeeper)
	assert.Equal(t, types.MaxBlockHeight, upkeep.MaxValidBlocknumber)
	assert.Empty(t, store.CanceledList())
}

func TestUpkeepStore_Charge(t *testing.T) {
	target := common.HexToAddress("0x10")
	store := NewUpkeepStore()

	j := util.NewJournal()
	id, err := store.Register(j, codeAt{target: struct{}{}}, DefaultConfig(), target, 100_000, target, nil)
	require.NoError(t, err)
	require.NoError(t, store.AddFunds(j, id, target, big.NewInt(10)))

	err = store.Charge(j, id, target, big.NewInt(11), 1)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	upkeep, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), upkeep.Balance.Int64())
}
