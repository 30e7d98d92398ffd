package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var ErrInsufficientAllowance = fmt.Errorf("insufficient allowance")

// Token is an in-memory ERC-677 token. Receivers of TransferAndCall are
// resolved through the chain by address.
type Token struct {
	// provided dependencies
	address common.Address
	backend types.Chain
	logger  *log.Logger

	// internal state values
	mu          sync.Mutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func New(address common.Address, backend types.Chain, logger *log.Logger) *Token {
	return &Token{
		address:     address,
		backend:     backend,
		logger:      telemetry.WrapLogger(logger, "link"),
		totalSupply: big.NewInt(0),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address {
	return t.address
}

// Mint creates amount tokens for the account.
func (t *Token) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalSupply.Add(t.totalSupply, amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return new(big.Int).Set(t.balanceOf(owner)), nil
}

func (t *Token) Approve(_ context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance", types.ErrInvalidAmount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.allowances[owner]; !ok {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}

	t.allowances[owner][spender] = new(big.Int).Set(amount)

	return nil
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return new(big.Int).Set(t.allowance(owner, spender))
}

func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(from, spender)
	if amount != nil && allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s of %s", ErrInsufficientAllowance, spender, allowed, amount)
	}

	if err := t.move(from, to, amount); err != nil {
		return err
	}

	if spenders, ok := t.allowances[from]; ok {
		spenders[spender] = new(big.Int).Sub(allowed, amount)
	}

	return nil
}

// TransferAndCall transfers the amount and notifies the recipient when it is
// a contract. The recipient is called without the token lock held so it may
// move tokens itself. A recipient error reverses the transfer.
func (t *Token) TransferAndCall(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) error {
	if err := t.Transfer(ctx, from, to, amount); err != nil {
		return err
	}

	if _, ok := t.backend.CodeAt(to); !ok {
		return nil
	}

	receiver, err := chain.ContractAt[types.TokenReceiver](t.backend, to)
	if err == nil {
		err = receiver.OnTokenTransfer(ctx, types.TransactOpts{From: t.address}, from, new(big.Int).Set(amount), data)
	}

	if err != nil {
		t.logger.Printf("reverting transfer of %s from %s to %s: %s", amount, from, to, err)

		if revertErr := t.Transfer(ctx, to, from, amount); revertErr != nil {
			return errors.Join(err, revertErr)
		}

		return err
	}

	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: transfer", types.ErrInvalidAmount)
	}

	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", types.ErrInvalidRecipient)
	}

	balance := t.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s", types.ErrInsufficientBalance, from, balance, amount)
	}

	t.balances[from] = new(big.Int).Sub(balance, amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)

	return nil
}

func (t *Token) balanceOf(owner common.Address) *big.Int {
	if balance, ok := t.balances[owner]; ok {
		return balance
	}

	return big.NewInt(0)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if allowed, ok := spenders[spender]; ok {
			return allowed
		}
	}

	return big.NewInt(0)
}

var _ types.Token = (*Token)(nil)
