package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

// AddFunds pulls amount from the caller through the token allowance and
// credits the upkeep.
func (r *Registry) AddFunds(ctx context.Context, opts types.TransactOpts, id types.UpkeepIdentifier, amount *big.Int) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.whenNotPaused(); err != nil {
			return err
		}

		if err := r.creditUpkeep(j, id, opts.From, amount); err != nil {
			return err
		}

		if err := r.token.TransferFrom(ctx, r.address, opts.From, r.address, amount); err != nil {
			return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
		}

		return nil
	})
}

// OnTokenTransfer funds an upkeep with tokens sent through transferAndCall.
// The data is the abi encoded upkeep id.
func (r *Registry) OnTokenTransfer(_ context.Context, opts types.TransactOpts, sender common.Address, amount *big.Int, data []byte) error {
	return r.transact(func(j *util.Journal) error {
		if opts.From != r.token.Address() {
			return fmt.Errorf("%w: caller %s", types.ErrOnlyToken, opts.From)
		}

		if err := r.whenNotPaused(); err != nil {
			return err
		}

		id, err := chain.DecodeUpkeepID(data)
		if err != nil {
			return err
		}

		return r.creditUpkeep(j, id, sender, amount)
	})
}

func (r *Registry) creditUpkeep(j *util.Journal, id types.UpkeepIdentifier, from common.Address, amount *big.Int) error {
	if err := r.upkeeps.AddFunds(j, id, from, amount); err != nil {
		return err
	}

	util.Set(j, &r.expectedLinkBalance, new(big.Int).Add(r.expectedLinkBalance, amount))

	return nil
}

// WithdrawFunds sends funds from a canceled and expired upkeep to the
// recipient. Only the upkeep admin may withdraw; partial amounts are allowed.
func (r *Registry) WithdrawFunds(ctx context.Context, opts types.TransactOpts, id types.UpkeepIdentifier, amount *big.Int, to common.Address) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.upkeeps.Withdraw(j, id, opts.From, to, amount, r.backend.BlockNumber()); err != nil {
			return err
		}

		return r.payOut(ctx, j, to, amount)
	})
}

// WithdrawPayment sends accrued keeper earnings to the recipient. Only the
// keeper payee may withdraw; partial amounts are allowed.
func (r *Registry) WithdrawPayment(ctx context.Context, opts types.TransactOpts, keeper common.Address, amount *big.Int, to common.Address) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.keepers.Withdraw(j, keeper, opts.From, to, amount); err != nil {
			return err
		}

		return r.payOut(ctx, j, to, amount)
	})
}

// RecoverFunds sends tokens held by the registry beyond the sum of upkeep
// and keeper balances to the owner.
func (r *Registry) RecoverFunds(ctx context.Context, opts types.TransactOpts) (*big.Int, error) {
	recovered := big.NewInt(0)

	err := r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		held, err := r.token.BalanceOf(ctx, r.address)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
		}

		recovered.Sub(held, r.expectedLinkBalance)
		if recovered.Sign() <= 0 {
			recovered.SetInt64(0)

			return nil
		}

		if err := r.token.Transfer(ctx, r.address, opts.From, recovered); err != nil {
			return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
		}

		j.Emit(FundsRecovered{To: opts.From, Amount: new(big.Int).Set(recovered)})

		return nil
	})

	if err != nil {
		return nil, err
	}

	return recovered, nil
}

func (r *Registry) payOut(ctx context.Context, j *util.Journal, to common.Address, amount *big.Int) error {
	util.Set(j, &r.expectedLinkBalance, new(big.Int).Sub(r.expectedLinkBalance, amount))

	if err := r.token.Transfer(ctx, r.address, to, amount); err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
	}

	return nil
}
