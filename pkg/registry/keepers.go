package registry

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

type keeperRecord struct {
	payee         common.Address
	proposedPayee common.Address
	active        bool
	balance       *big.Int
}

// KeeperDirectory tracks the keepers allowed to perform upkeeps, the payees
// entitled to their earnings, and accrued balances. Removed keepers keep
// their record and balance. All writes are recorded in the provided journal.
type KeeperDirectory struct {
	records map[common.Address]*keeperRecord
	list    []common.Address
}

func NewKeeperDirectory() *KeeperDirectory {
	return &KeeperDirectory{
		records: make(map[common.Address]*keeperRecord),
		list:    make([]common.Address, 0),
	}
}

// SetKeepers replaces the active keeper list. A keeper that already has a
// payee must be provided with the same payee.
func (d *KeeperDirectory) SetKeepers(j *util.Journal, keepers, payees []common.Address) error {
	if len(keepers) != len(payees) {
		return fmt.Errorf("%w: %d keepers and %d payees", types.ErrInvalidKeeperList, len(keepers), len(payees))
	}

	incoming := make(map[common.Address]struct{}, len(keepers))

	for idx, keeper := range keepers {
		if keeper == (common.Address{}) || payees[idx] == (common.Address{}) {
			return fmt.Errorf("%w: zero address at index %d", types.ErrInvalidKeeperList, idx)
		}

		if _, ok := incoming[keeper]; ok {
			return fmt.Errorf("%w: duplicate keeper %s", types.ErrInvalidKeeperList, keeper)
		}

		incoming[keeper] = struct{}{}

		if rec, ok := d.records[keeper]; ok && rec.payee != (common.Address{}) && rec.payee != payees[idx] {
			return fmt.Errorf("%w: keeper %s is paid to %s", types.ErrPayeeMismatch, keeper, rec.payee)
		}
	}

	for _, keeper := range d.list {
		if _, ok := incoming[keeper]; ok {
			continue
		}

		util.Set(j, &d.records[keeper].active, false)
		j.Emit(KeeperRemoved{Keeper: keeper})
	}

	for idx, keeper := range keepers {
		rec, ok := d.records[keeper]
		if !ok {
			rec = &keeperRecord{balance: big.NewInt(0)}
			util.SetKey(j, d.records, keeper, rec)
		}

		if !rec.active {
			util.Set(j, &rec.active, true)
			j.Emit(KeeperAdded{Keeper: keeper, Payee: payees[idx]})
		}

		util.Set(j, &rec.payee, payees[idx])
	}

	util.Set(j, &d.list, slices.Clone(keepers))
	j.Emit(KeepersUpdated{Keepers: slices.Clone(keepers), Payees: slices.Clone(payees)})

	return nil
}

func (d *KeeperDirectory) IsActive(keeper common.Address) bool {
	rec, ok := d.records[keeper]

	return ok && rec.active
}

// RequireActive returns ErrNotAKeeper for unknown or removed keepers.
func (d *KeeperDirectory) RequireActive(keeper common.Address) error {
	if !d.IsActive(keeper) {
		return fmt.Errorf("%w: %s", types.ErrNotAKeeper, keeper)
	}

	return nil
}

// Credit adds a perform payment to the keeper balance.
func (d *KeeperDirectory) Credit(j *util.Journal, keeper common.Address, amount *big.Int) error {
	rec, ok := d.records[keeper]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotAKeeper, keeper)
	}

	util.Set(j, &rec.balance, new(big.Int).Add(rec.balance, amount))

	return nil
}

// Withdraw debits amount from the keeper balance on behalf of its payee.
func (d *KeeperDirectory) Withdraw(j *util.Journal, keeper, caller, to common.Address, amount *big.Int) error {
	rec, ok := d.records[keeper]
	if !ok || rec.payee != caller {
		return fmt.Errorf("%w: only callable by payee", types.ErrUnauthorized)
	}

	if to == (common.Address{}) {
		return fmt.Errorf("%w: cannot send to zero address", types.ErrInvalidRecipient)
	}

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal must be positive", types.ErrInvalidAmount)
	}

	if amount.Cmp(rec.balance) > 0 {
		return fmt.Errorf("%w: requested %s of %s", types.ErrInsufficientBalance, amount, rec.balance)
	}

	util.Set(j, &rec.balance, new(big.Int).Sub(rec.balance, amount))
	j.Emit(PaymentWithdrawn{Keeper: keeper, Amount: new(big.Int).Set(amount), To: to, Payee: caller})

	return nil
}

// TransferPayeeship proposes a new payee. Proposing the current candidate
// again changes nothing.
func (d *KeeperDirectory) TransferPayeeship(j *util.Journal, keeper, caller, proposed common.Address) error {
	rec, ok := d.records[keeper]
	if !ok || rec.payee != caller {
		return fmt.Errorf("%w: only callable by payee", types.ErrUnauthorized)
	}

	if proposed == caller {
		return fmt.Errorf("%w: payeeship", types.ErrSelfTransfer)
	}

	if rec.proposedPayee == proposed {
		return nil
	}

	util.Set(j, &rec.proposedPayee, proposed)
	j.Emit(PayeeshipTransferRequested{Keeper: keeper, From: caller, To: proposed})

	return nil
}

// AcceptPayeeship completes a transfer started by TransferPayeeship.
func (d *KeeperDirectory) AcceptPayeeship(j *util.Journal, keeper, caller common.Address) error {
	rec, ok := d.records[keeper]
	if !ok || rec.proposedPayee == (common.Address{}) || rec.proposedPayee != caller {
		return fmt.Errorf("%w: only callable by proposed payee", types.ErrUnauthorized)
	}

	previous := rec.payee

	util.Set(j, &rec.payee, caller)
	util.Set(j, &rec.proposedPayee, common.Address{})
	j.Emit(PayeeshipTransferred{Keeper: keeper, From: previous, To: caller})

	return nil
}

func (d *KeeperDirectory) Info(keeper common.Address) (types.KeeperInfo, bool) {
	rec, ok := d.records[keeper]
	if !ok {
		return types.KeeperInfo{}, false
	}

	return types.KeeperInfo{
		Address:       keeper,
		Payee:         rec.payee,
		ProposedPayee: rec.proposedPayee,
		Active:        rec.active,
		Balance:       new(big.Int).Set(rec.balance),
	}, true
}

// List returns the active keepers in the order they were set.
func (d *KeeperDirectory) List() []common.Address {
	return slices.Clone(d.list)
}
