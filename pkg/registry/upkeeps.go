package registry

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

type upkeepRecord struct {
	target              common.Address
	executeGas          uint32
	checkData           []byte
	admin               common.Address
	balance             *big.Int
	maxValidBlocknumber uint64
	lastKeeper          common.Address
	lastPerformedBlock  uint64
	amountSpent         *big.Int
}

func (r *upkeepRecord) activeAt(height uint64) bool {
	return height < r.maxValidBlocknumber
}

func (r *upkeepRecord) canceled() bool {
	return r.maxValidBlocknumber != types.MaxBlockHeight
}

// UpkeepStore is an arena of upkeep records indexed by registration order.
// Records are never removed; cancellation only bounds their validity.
type UpkeepStore struct {
	upkeeps  []*upkeepRecord
	canceled []types.UpkeepIdentifier
}

func NewUpkeepStore() *UpkeepStore {
	return &UpkeepStore{
		upkeeps:  make([]*upkeepRecord, 0),
		canceled: make([]types.UpkeepIdentifier, 0),
	}
}

// Register validates and stores a new upkeep with a zero balance.
func (s *UpkeepStore) Register(j *util.Journal, chain types.Chain, conf Config, target common.Address, executeGas uint32, admin common.Address, checkData []byte) (types.UpkeepIdentifier, error) {
	if _, ok := chain.CodeAt(target); !ok {
		return types.UpkeepIdentifier{}, fmt.Errorf("%w: %s", types.ErrNotAContract, target)
	}

	if executeGas < conf.MinExecuteGas || executeGas > conf.MaxExecuteGas {
		return types.UpkeepIdentifier{}, fmt.Errorf("%w: %d not in [%d, %d]", types.ErrGasOutOfRange, executeGas, conf.MinExecuteGas, conf.MaxExecuteGas)
	}

	id := types.UpkeepIdentifierFromIndex(uint64(len(s.upkeeps)))

	util.Append(j, &s.upkeeps, &upkeepRecord{
		target:              target,
		executeGas:          executeGas,
		checkData:           slices.Clone(checkData),
		admin:               admin,
		balance:             big.NewInt(0),
		maxValidBlocknumber: types.MaxBlockHeight,
		amountSpent:         big.NewInt(0),
	})
	j.Emit(UpkeepRegistered{ID: id, ExecuteGas: executeGas, Admin: admin})

	return id, nil
}

func (s *UpkeepStore) get(id types.UpkeepIdentifier) (*upkeepRecord, error) {
	idx, ok := id.Index()
	if !ok || idx >= uint64(len(s.upkeeps)) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownUpkeep, id)
	}

	return s.upkeeps[idx], nil
}

// AddFunds credits an upkeep that has not been canceled.
func (s *UpkeepStore) AddFunds(j *util.Journal, id types.UpkeepIdentifier, from common.Address, amount *big.Int) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}

	if rec.canceled() {
		return fmt.Errorf("%w: cannot fund upkeep %s", types.ErrAlreadyCanceled, id)
	}

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: funding must be positive", types.ErrInvalidAmount)
	}

	util.Set(j, &rec.balance, new(big.Int).Add(rec.balance, amount))
	j.Emit(FundsAdded{ID: id, From: from, Amount: new(big.Int).Set(amount)})

	return nil
}

// Cancel bounds the upkeep validity. Owner cancellation applies at the
// current height and may shorten a pending admin cancellation; admin
// cancellation applies CancellationDelay blocks later. The returned height
// is the first block at which the upkeep is inactive.
func (s *UpkeepStore) Cancel(j *util.Journal, id types.UpkeepIdentifier, caller common.Address, isOwner bool, height uint64) (uint64, error) {
	rec, err := s.get(id)
	if err != nil {
		return 0, err
	}

	if !isOwner && caller != rec.admin {
		return 0, fmt.Errorf("%w: only owner or admin", types.ErrUnauthorized)
	}

	notCanceled := !rec.canceled()
	if !notCanceled && !(isOwner && rec.maxValidBlocknumber > height) {
		return 0, fmt.Errorf("%w: too late to cancel upkeep %s", types.ErrAlreadyCanceled, id)
	}

	effective := height
	if !isOwner {
		effective += CancellationDelay
	}

	util.Set(j, &rec.maxValidBlocknumber, effective)

	if notCanceled {
		util.Append(j, &s.canceled, id)
	}

	j.Emit(UpkeepCanceled{ID: id, AtBlockHeight: effective})

	return effective, nil
}

// Withdraw debits an expired upkeep on behalf of its admin.
func (s *UpkeepStore) Withdraw(j *util.Journal, id types.UpkeepIdentifier, caller, to common.Address, amount *big.Int, height uint64) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}

	if caller != rec.admin {
		return fmt.Errorf("%w: only callable by admin", types.ErrUnauthorized)
	}

	if to == (common.Address{}) {
		return fmt.Errorf("%w: cannot send to zero address", types.ErrInvalidRecipient)
	}

	if rec.activeAt(height) {
		return fmt.Errorf("%w: upkeep %s valid until block %d", types.ErrNotCanceled, id, rec.maxValidBlocknumber)
	}

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal must be positive", types.ErrInvalidAmount)
	}

	if amount.Cmp(rec.balance) > 0 {
		return fmt.Errorf("%w: requested %s of %s", types.ErrInsufficientBalance, amount, rec.balance)
	}

	util.Set(j, &rec.balance, new(big.Int).Sub(rec.balance, amount))
	j.Emit(FundsWithdrawn{ID: id, Amount: new(big.Int).Set(amount), To: to})

	return nil
}

// Reserve holds amount back from the upkeep balance while a perform is in
// flight. The reservation is returned with Refund.
func (s *UpkeepStore) Reserve(j *util.Journal, id types.UpkeepIdentifier, amount *big.Int) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}

	if amount.Cmp(rec.balance) > 0 {
		return fmt.Errorf("%w: balance %s below max payment %s", types.ErrInsufficientBalance, rec.balance, amount)
	}

	util.Set(j, &rec.balance, new(big.Int).Sub(rec.balance, amount))

	return nil
}

func (s *UpkeepStore) Refund(j *util.Journal, id types.UpkeepIdentifier, amount *big.Int) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}

	util.Set(j, &rec.balance, new(big.Int).Add(rec.balance, amount))

	return nil
}

// Charge debits a perform payment and records the performing keeper.
func (s *UpkeepStore) Charge(j *util.Journal, id types.UpkeepIdentifier, keeper common.Address, payment *big.Int, height uint64) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}

	if payment.Cmp(rec.balance) > 0 {
		return fmt.Errorf("%w: payment %s exceeds balance %s", types.ErrInsufficientBalance, payment, rec.balance)
	}

	util.Set(j, &rec.balance, new(big.Int).Sub(rec.balance, payment))
	util.Set(j, &rec.amountSpent, new(big.Int).Add(rec.amountSpent, payment))
	util.Set(j, &rec.lastKeeper, keeper)
	util.Set(j, &rec.lastPerformedBlock, height)

	return nil
}

func (s *UpkeepStore) IsActive(id types.UpkeepIdentifier, height uint64) bool {
	rec, err := s.get(id)

	return err == nil && rec.activeAt(height)
}

func (s *UpkeepStore) Get(id types.UpkeepIdentifier) (types.Upkeep, error) {
	rec, err := s.get(id)
	if err != nil {
		return types.Upkeep{}, err
	}

	return types.Upkeep{
		ID:                  id,
		Target:              rec.target,
		ExecuteGas:          rec.executeGas,
		CheckData:           slices.Clone(rec.checkData),
		Admin:               rec.admin,
		Balance:             new(big.Int).Set(rec.balance),
		MaxValidBlocknumber: rec.maxValidBlocknumber,
		LastKeeper:          rec.lastKeeper,
		LastPerformedBlock:  rec.lastPerformedBlock,
		AmountSpent:         new(big.Int).Set(rec.amountSpent),
	}, nil
}

func (s *UpkeepStore) Count() uint64 {
	return uint64(len(s.upkeeps))
}

// CanceledList returns canceled upkeep ids in cancellation order.
func (s *UpkeepStore) CanceledList() []types.UpkeepIdentifier {
	return slices.Clone(s.canceled)
}
