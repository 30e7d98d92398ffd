package types

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxBlockHeight marks an upkeep that has not been canceled.
const MaxBlockHeight uint64 = math.MaxUint64

// UpkeepIdentifier is a unique identifier for the upkeep, represented as uint256 in the contract.
type UpkeepIdentifier [32]byte

// UpkeepIdentifierFromIndex returns the identifier assigned to the upkeep at
// the provided registration index.
func UpkeepIdentifierFromIndex(idx uint64) UpkeepIdentifier {
	var id UpkeepIdentifier

	id.FromBigInt(new(big.Int).SetUint64(idx))

	return id
}

func (u UpkeepIdentifier) String() string {
	return u.BigInt().String()
}

func (u UpkeepIdentifier) BigInt() *big.Int {
	return big.NewInt(0).SetBytes(u[:])
}

// Index returns the registration index for the identifier and false if the
// value does not fit in a uint64.
func (u UpkeepIdentifier) Index() (uint64, bool) {
	value := u.BigInt()
	if !value.IsUint64() {
		return 0, false
	}

	return value.Uint64(), true
}

// FromBigInt sets the upkeep identifier from a big.Int,
// returning true if the big.Int is valid and false otherwise.
// in case of an invalid big.Int the upkeep identifier is set to 32 zeros.
func (u *UpkeepIdentifier) FromBigInt(i *big.Int) bool {
	*u = [32]byte{}
	if i.Cmp(big.NewInt(0)) == -1 {
		return false
	}
	b := i.Bytes()
	if len(b) == 0 {
		return true
	}
	if len(b) <= 32 {
		copy(u[32-len(b):], i.Bytes())
		return true
	}
	return false
}

// Upkeep is a point in time copy of a registered upkeep.
type Upkeep struct {
	ID         UpkeepIdentifier
	Target     common.Address
	ExecuteGas uint32
	CheckData  []byte
	Admin      common.Address
	// Balance is the amount of juels available to pay keepers
	Balance *big.Int
	// MaxValidBlocknumber is MaxBlockHeight until the upkeep is canceled
	MaxValidBlocknumber uint64
	// LastKeeper is the zero address until the first perform
	LastKeeper         common.Address
	LastPerformedBlock uint64
	AmountSpent        *big.Int
}

// ActiveAt indicates whether the upkeep can be checked or performed at the
// provided block height.
func (u Upkeep) ActiveAt(height uint64) bool {
	return height < u.MaxValidBlocknumber
}

// Canceled indicates whether a cancellation has been recorded, pending or not.
func (u Upkeep) Canceled() bool {
	return u.MaxValidBlocknumber != MaxBlockHeight
}

// KeeperInfo is a point in time copy of a keeper record.
type KeeperInfo struct {
	Address       common.Address
	Payee         common.Address
	ProposedPayee common.Address
	Active        bool
	Balance       *big.Int
}

type FailureReason uint8

const (
	FailureReasonNone FailureReason = iota
	FailureReasonUpkeepNotNeeded
	FailureReasonTargetCheckReverted
	FailureReasonKeeperInactive
	FailureReasonMustTakeTurns
	FailureReasonInsufficientBalance
)

func (r FailureReason) String() string {
	switch r {
	case FailureReasonNone:
		return "none"
	case FailureReasonUpkeepNotNeeded:
		return "upkeep not needed"
	case FailureReasonTargetCheckReverted:
		return "target check reverted"
	case FailureReasonKeeperInactive:
		return "keeper inactive"
	case FailureReasonMustTakeTurns:
		return "must take turns"
	case FailureReasonInsufficientBalance:
		return "insufficient balance"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

type CheckResult struct {
	// UpkeepID is the upkeep that was checked
	UpkeepID UpkeepIdentifier
	// Eligible indicates whether this result is eligible to be performed
	Eligible bool
	// If result is not eligible then the reason it failed
	FailureReason FailureReason
	// PerformData is the raw data returned when simulating an upkeep check
	PerformData []byte
	// MaxPayment is the quoted upper bound for a perform at current prices
	MaxPayment *big.Int
	// GasLimit is the minimum transaction gas limit a perform requires
	GasLimit uint64
	// FastGasWei is the gas price used for the quote
	FastGasWei *big.Int
	// LinkNative is the token price used for the quote
	LinkNative *big.Int
}

type PerformResult struct {
	UpkeepID UpkeepIdentifier
	// Success is false when the target call failed; the keeper is paid either way
	Success bool
	GasUsed uint64
	Payment *big.Int
}

// TransactOpts describes a state changing call.
type TransactOpts struct {
	From     common.Address
	GasLimit uint64
	// GasPrice is the transaction gas price. A nil or zero value leaves the
	// feed price uncapped.
	GasPrice *big.Int
}

// CallOpts describes a read-only call.
type CallOpts struct {
	From common.Address
	// Simulate must be set for calls that are only valid off-chain
	Simulate bool
}
