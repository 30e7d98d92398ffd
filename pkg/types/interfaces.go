package types

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is the view of the execution environment available to contracts.
type Chain interface {
	BlockNumber() uint64
	Timestamp() time.Time
	// CodeAt returns the contract deployed at the address, if any.
	CodeAt(common.Address) (any, bool)
}

// GasMeter tracks gas available to a single call frame.
type GasMeter interface {
	// Consume deducts the amount from the remaining gas and returns
	// ErrOutOfGas when the meter is exhausted. An exhausting call leaves
	// the meter at zero.
	Consume(uint64) error
	Remaining() uint64
	Used() uint64
	Limit() uint64
}

// KeeperCompatible is implemented by upkeep target contracts. Returned errors
// and panics are treated as reverts. Implementations must not call back into
// the registry.
type KeeperCompatible interface {
	CheckUpkeep(context.Context, GasMeter, []byte) (bool, []byte, error)
	PerformUpkeep(context.Context, GasMeter, []byte) error
}

// Token is an ERC-677 token. The from and spender arguments identify the
// account signing the call.
type Token interface {
	Address() common.Address
	BalanceOf(context.Context, common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	// TransferAndCall transfers the amount and calls OnTokenTransfer on the
	// recipient. An error from the recipient reverts the transfer.
	TransferAndCall(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) error
}

// TokenReceiver is implemented by contracts accepting TransferAndCall.
// opts.From is the token contract.
type TokenReceiver interface {
	OnTokenTransfer(ctx context.Context, opts TransactOpts, sender common.Address, amount *big.Int, data []byte) error
}

type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

type PriceFeed interface {
	LatestRoundData(context.Context) (RoundData, error)
}
