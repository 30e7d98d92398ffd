package registrar

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/access"
	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

// DefaultMinLINKJuels is the smallest registration payment, 1 LINK.
var DefaultMinLINKJuels = big.NewInt(1_000_000_000_000_000_000)

// KeeperRegistry is the registry surface used to approve requests.
type KeeperRegistry interface {
	RegisterUpkeep(ctx context.Context, opts types.TransactOpts, target common.Address, executeGas uint32, admin common.Address, checkData []byte) (types.UpkeepIdentifier, error)
}

// Config controls auto approval. The window is measured in blocks.
type Config struct {
	AutoApproveEnabled bool           `json:"autoApproveEnabled" yaml:"autoApproveEnabled"`
	WindowSizeInBlocks uint32         `json:"windowSizeInBlocks" yaml:"windowSizeInBlocks"`
	AllowedPerWindow   uint16         `json:"allowedPerWindow" yaml:"allowedPerWindow"`
	KeeperRegistry     common.Address `json:"keeperRegistry" yaml:"keeperRegistry"`
	MinLINKJuels       *big.Int       `json:"minLINKJuels" yaml:"minLINKJuels"`
}

// State is the registrar configuration with the current throttle window.
type State struct {
	Config
	WindowStart             uint64
	ApprovedInCurrentWindow uint16
}

// PendingRequest is a registration waiting for manual approval.
type PendingRequest struct {
	Admin   common.Address
	Balance *big.Int
}

type Options struct {
	Address common.Address
	Owner   common.Address
	Chain   types.Chain
	Token   types.Token
	// MinLINKJuels defaults to DefaultMinLINKJuels when nil
	MinLINKJuels *big.Int
	Logger       *log.Logger
}

// Registrar accepts funded registration requests through the token's
// transferAndCall and either forwards them to the registry or queues them
// for the owner.
type Registrar struct {
	// provided dependencies
	address common.Address
	backend types.Chain
	token   types.Token
	logger  *log.Logger

	// internal state values
	mu          sync.Mutex
	ownable     access.Ownable
	config      Config
	windowStart uint64
	approved    uint16
	pending     map[common.Hash]*PendingRequest
	logs        []types.Log
}

func New(opts Options) (*Registrar, error) {
	if opts.Chain == nil || opts.Token == nil {
		return nil, fmt.Errorf("%w: chain and token are required", types.ErrInvalidConfig)
	}

	minJuels := opts.MinLINKJuels
	if minJuels == nil {
		minJuels = DefaultMinLINKJuels
	}

	if minJuels.Sign() <= 0 {
		return nil, fmt.Errorf("%w: minimum LINK juels must be positive", types.ErrInvalidConfig)
	}

	return &Registrar{
		address: opts.Address,
		backend: opts.Chain,
		token:   opts.Token,
		logger:  telemetry.WrapLogger(opts.Logger, "registrar"),
		ownable: access.NewOwnable(opts.Owner),
		config:  Config{MinLINKJuels: new(big.Int).Set(minJuels)},
		pending: make(map[common.Hash]*PendingRequest),
		logs:    make([]types.Log, 0),
	}, nil
}

func (r *Registrar) transact(fn func(*util.Journal) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := util.NewJournal()

	if err := fn(j); err != nil {
		j.Revert()

		return err
	}

	block := r.backend.BlockNumber()
	for _, evt := range j.Commit() {
		r.logs = append(r.logs, types.Log{
			BlockNumber: block,
			Address:     r.address,
			Event:       evt,
		})
	}

	return nil
}

func (r *Registrar) SetRegistrationConfig(_ context.Context, opts types.TransactOpts, conf Config) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		// registry funding rejects zero amounts
		if conf.MinLINKJuels == nil || conf.MinLINKJuels.Sign() <= 0 {
			return fmt.Errorf("%w: minimum LINK juels must be positive", types.ErrInvalidConfig)
		}

		conf.MinLINKJuels = new(big.Int).Set(conf.MinLINKJuels)

		util.Set(j, &r.config, conf)
		j.Emit(ConfigChanged{Config: conf})

		return nil
	})
}

func (r *Registrar) GetRegistrationConfig() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	conf := r.config
	conf.MinLINKJuels = new(big.Int).Set(r.config.MinLINKJuels)

	return State{
		Config:                  conf,
		WindowStart:             r.windowStart,
		ApprovedInCurrentWindow: r.approved,
	}
}

// Register rejects direct calls; registrations must arrive through the
// token with funds attached.
func (r *Registrar) Register(_ context.Context, opts types.TransactOpts, _ Request) error {
	return fmt.Errorf("%w: caller %s", types.ErrOnlyToken, opts.From)
}

// OnTokenTransfer handles a register call sent with transferAndCall. The
// registered amount must match the transferred amount.
func (r *Registrar) OnTokenTransfer(ctx context.Context, opts types.TransactOpts, sender common.Address, amount *big.Int, data []byte) error {
	return r.transact(func(j *util.Journal) error {
		if opts.From != r.token.Address() {
			return fmt.Errorf("%w: caller %s", types.ErrOnlyToken, opts.From)
		}

		req, err := DecodeRegisterCall(data)
		if err != nil {
			return err
		}

		if amount == nil || req.Amount.Cmp(amount) != 0 {
			return fmt.Errorf("%w: registered %s, transferred %s", types.ErrAmountMismatch, req.Amount, amount)
		}

		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: registration payment must be positive", types.ErrInvalidAmount)
		}

		if amount.Cmp(r.config.MinLINKJuels) < 0 {
			return fmt.Errorf("%w: %s below minimum %s", types.ErrInsufficientPayment, amount, r.config.MinLINKJuels)
		}

		return r.register(ctx, j, sender, req)
	})
}

func (r *Registrar) register(ctx context.Context, j *util.Journal, sender common.Address, req Request) error {
	hash, err := req.Hash()
	if err != nil {
		return err
	}

	j.Emit(RegistrationRequested{
		Hash:           hash,
		Name:           req.Name,
		EncryptedEmail: slices.Clone(req.EncryptedEmail),
		UpkeepContract: req.UpkeepContract,
		GasLimit:       req.GasLimit,
		AdminAddress:   req.AdminAddress,
		CheckData:      slices.Clone(req.CheckData),
		Amount:         new(big.Int).Set(req.Amount),
		Source:         req.Source,
	})

	if r.shouldAutoApprove(j) {
		r.logger.Printf("auto approving registration %s from %s", hash.Hex(), sender)
		prommetrics.RegistrarRequests.WithLabelValues(prommetrics.OutcomeApproved).Inc()

		return r.approve(ctx, j, req, hash, req.Amount)
	}

	existing, ok := r.pending[hash]
	if !ok {
		util.SetKey(j, r.pending, hash, &PendingRequest{Admin: req.AdminAddress, Balance: new(big.Int).Set(req.Amount)})
	} else {
		util.Set(j, &existing.Balance, new(big.Int).Add(existing.Balance, req.Amount))
	}

	r.logger.Printf("queued registration %s from %s", hash.Hex(), sender)
	prommetrics.RegistrarRequests.WithLabelValues(prommetrics.OutcomePending).Inc()

	return nil
}

// shouldAutoApprove consumes an approval from the current window when auto
// approval is enabled. Windows are tumbling; a new window starts at the
// first registration at or after windowStart + WindowSizeInBlocks.
func (r *Registrar) shouldAutoApprove(j *util.Journal) bool {
	if !r.config.AutoApproveEnabled {
		return false
	}

	height := r.backend.BlockNumber()
	if height >= r.windowStart+uint64(r.config.WindowSizeInBlocks) {
		util.Set(j, &r.windowStart, height)
		util.Set(j, &r.approved, 0)
	}

	if r.approved >= r.config.AllowedPerWindow {
		return false
	}

	util.Set(j, &r.approved, r.approved+1)

	return true
}

// Approve registers a queued request. Only the owner may approve, and the
// payload must hash to the provided value.
func (r *Registrar) Approve(ctx context.Context, opts types.TransactOpts, req Request, hash common.Hash) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		pending, ok := r.pending[hash]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrRequestNotFound, hash.Hex())
		}

		computed, err := req.Hash()
		if err != nil {
			return err
		}

		if computed != hash {
			return fmt.Errorf("%w: payload hashes to %s", types.ErrHashMismatch, computed.Hex())
		}

		balance := pending.Balance

		util.DeleteKey(j, r.pending, hash)
		prommetrics.RegistrarRequests.WithLabelValues(prommetrics.OutcomeApproved).Inc()

		return r.approve(ctx, j, req, hash, balance)
	})
}

// Cancel deletes a queued request and refunds its balance to the request
// admin. The admin or the owner may cancel.
func (r *Registrar) Cancel(ctx context.Context, opts types.TransactOpts, hash common.Hash) error {
	return r.transact(func(j *util.Journal) error {
		pending, ok := r.pending[hash]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrRequestNotFound, hash.Hex())
		}

		if !r.ownable.IsOwner(opts.From) && opts.From != pending.Admin {
			return fmt.Errorf("%w: only admin or owner", types.ErrUnauthorized)
		}

		util.DeleteKey(j, r.pending, hash)
		j.Emit(RegistrationRejected{Hash: hash})
		prommetrics.RegistrarRequests.WithLabelValues(prommetrics.OutcomeRejected).Inc()

		if err := r.token.Transfer(ctx, r.address, pending.Admin, pending.Balance); err != nil {
			return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
		}

		return nil
	})
}

// approve registers the upkeep on the registry and funds it with amount.
// Anything the funding transfer would reject is checked before the upkeep
// is registered.
func (r *Registrar) approve(ctx context.Context, j *util.Journal, req Request, hash common.Hash, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: cannot fund upkeep with %s", types.ErrInvalidAmount, amount)
	}

	registry, err := chain.ContractAt[KeeperRegistry](r.backend, r.config.KeeperRegistry)
	if err != nil {
		return err
	}

	id, err := registry.RegisterUpkeep(ctx, types.TransactOpts{From: r.address}, req.UpkeepContract, req.GasLimit, req.AdminAddress, req.CheckData)
	if err != nil {
		return err
	}

	data, err := chain.EncodeUpkeepID(id)
	if err != nil {
		return err
	}

	if err := r.token.TransferAndCall(ctx, r.address, r.config.KeeperRegistry, amount, data); err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
	}

	j.Emit(RegistrationApproved{Hash: hash, DisplayName: req.Name, UpkeepID: id})

	return nil
}

func (r *Registrar) GetPendingRequest(hash common.Hash) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, ok := r.pending[hash]
	if !ok {
		return PendingRequest{}, false
	}

	return PendingRequest{Admin: pending.Admin, Balance: new(big.Int).Set(pending.Balance)}, true
}

func (r *Registrar) TransferOwnership(_ context.Context, opts types.TransactOpts, to common.Address) error {
	return r.transact(func(j *util.Journal) error {
		return r.ownable.TransferOwnership(j, opts.From, to)
	})
}

func (r *Registrar) AcceptOwnership(_ context.Context, opts types.TransactOpts) error {
	return r.transact(func(j *util.Journal) error {
		return r.ownable.AcceptOwnership(j, opts.From)
	})
}

func (r *Registrar) Address() common.Address {
	return r.address
}

func (r *Registrar) Owner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ownable.Owner()
}

func (r *Registrar) Logs() []types.Log {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.logs)
}

var _ types.TokenReceiver = (*Registrar)(nil)
