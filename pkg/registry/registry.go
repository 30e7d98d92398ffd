package registry

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/access"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

type Options struct {
	// Address is the address the registry is deployed at
	Address        common.Address
	Owner          common.Address
	Chain          types.Chain
	Token          types.Token
	FastGasFeed    types.PriceFeed
	LinkNativeFeed types.PriceFeed
	Config         Config
	Logger         *log.Logger
}

// Registry pays keepers from upkeep balances for performing upkeeps. Every
// exported method is atomic: a returned error leaves no state change and
// emits no event. State access is serialized, but target contracts are
// called without the lock held and may call back into the registry.
type Registry struct {
	// provided dependencies
	address common.Address
	backend types.Chain
	token   types.Token
	oracle  *PriceOracle
	logger  *log.Logger

	// internal state values
	mu                  sync.Mutex
	ownable             access.Ownable
	config              Config
	registrar           common.Address
	paused              bool
	keepers             *KeeperDirectory
	upkeeps             *UpkeepStore
	expectedLinkBalance *big.Int
	logs                []types.Log
	performing          map[types.UpkeepIdentifier]struct{}
}

func New(opts Options) (*Registry, error) {
	if opts.Chain == nil || opts.Token == nil {
		return nil, fmt.Errorf("%w: chain and token are required", types.ErrInvalidConfig)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.WrapLogger(opts.Logger, "registry")

	return &Registry{
		address:             opts.Address,
		backend:             opts.Chain,
		token:               opts.Token,
		oracle:              NewPriceOracle(opts.FastGasFeed, opts.LinkNativeFeed, logger),
		logger:              logger,
		ownable:             access.NewOwnable(opts.Owner),
		config:              opts.Config.clone(),
		keepers:             NewKeeperDirectory(),
		upkeeps:             NewUpkeepStore(),
		expectedLinkBalance: big.NewInt(0),
		logs:                make([]types.Log, 0),
		performing:          make(map[types.UpkeepIdentifier]struct{}),
	}, nil
}

// transact runs fn with a fresh journal. On error every recorded write is
// undone and buffered events are dropped; otherwise events are appended to
// the registry log at the current block.
func (r *Registry) transact(fn func(*util.Journal) error) error {
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

func (r *Registry) whenNotPaused() error {
	if r.paused {
		return fmt.Errorf("%w: registry", types.ErrPaused)
	}

	return nil
}

func (r *Registry) SetConfig(_ context.Context, opts types.TransactOpts, conf Config) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		if err := conf.Validate(); err != nil {
			return err
		}

		util.Set(j, &r.config, conf.clone())
		j.Emit(ConfigSet{Config: conf.clone()})

		return nil
	})
}

// SetRegistrar allows the address to register upkeeps alongside the owner.
func (r *Registry) SetRegistrar(_ context.Context, opts types.TransactOpts, registrar common.Address) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		previous := r.registrar
		if previous == registrar {
			return nil
		}

		util.Set(j, &r.registrar, registrar)
		j.Emit(RegistrarChanged{From: previous, To: registrar})

		return nil
	})
}

func (r *Registry) SetKeepers(_ context.Context, opts types.TransactOpts, keepers, payees []common.Address) error {
	err := r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		return r.keepers.SetKeepers(j, keepers, payees)
	})

	if err == nil {
		prommetrics.RegistryActiveKeepers.Set(float64(len(keepers)))
	}

	return err
}

// RegisterUpkeep stores a new upkeep for the target. Only the owner and the
// registrar may register.
func (r *Registry) RegisterUpkeep(_ context.Context, opts types.TransactOpts, target common.Address, executeGas uint32, admin common.Address, checkData []byte) (types.UpkeepIdentifier, error) {
	var id types.UpkeepIdentifier

	err := r.transact(func(j *util.Journal) error {
		if err := r.whenNotPaused(); err != nil {
			return err
		}

		if !r.ownable.IsOwner(opts.From) && (r.registrar == (common.Address{}) || opts.From != r.registrar) {
			return fmt.Errorf("%w: only callable by owner or registrar", types.ErrUnauthorized)
		}

		var err error

		id, err = r.upkeeps.Register(j, r.backend, r.config, target, executeGas, admin, checkData)

		return err
	})

	if err != nil {
		return types.UpkeepIdentifier{}, err
	}

	prommetrics.RegistryUpkeepsRegistered.Inc()
	r.logger.Printf("registered upkeep %s for target %s with execute gas %d", id, target, executeGas)

	return id, nil
}

// CancelUpkeep ends the validity of an upkeep. Owner cancellation is
// immediate; admin cancellation takes effect CancellationDelay blocks later.
func (r *Registry) CancelUpkeep(_ context.Context, opts types.TransactOpts, id types.UpkeepIdentifier) error {
	var byOwner bool

	err := r.transact(func(j *util.Journal) error {
		byOwner = r.ownable.IsOwner(opts.From)

		_, err := r.upkeeps.Cancel(j, id, opts.From, byOwner, r.backend.BlockNumber())

		return err
	})

	if err == nil {
		caller := prommetrics.CallerAdmin
		if byOwner {
			caller = prommetrics.CallerOwner
		}

		prommetrics.RegistryUpkeepsCanceled.WithLabelValues(caller).Inc()
	}

	return err
}

func (r *Registry) TransferOwnership(_ context.Context, opts types.TransactOpts, to common.Address) error {
	return r.transact(func(j *util.Journal) error {
		return r.ownable.TransferOwnership(j, opts.From, to)
	})
}

func (r *Registry) AcceptOwnership(_ context.Context, opts types.TransactOpts) error {
	return r.transact(func(j *util.Journal) error {
		return r.ownable.AcceptOwnership(j, opts.From)
	})
}

func (r *Registry) Pause(_ context.Context, opts types.TransactOpts) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		if err := r.whenNotPaused(); err != nil {
			return err
		}

		util.Set(j, &r.paused, true)
		j.Emit(Paused{Account: opts.From})

		return nil
	})
}

func (r *Registry) Unpause(_ context.Context, opts types.TransactOpts) error {
	return r.transact(func(j *util.Journal) error {
		if err := r.ownable.OnlyOwner(opts.From); err != nil {
			return err
		}

		if !r.paused {
			return fmt.Errorf("%w: registry not paused", types.ErrInvalidConfig)
		}

		util.Set(j, &r.paused, false)
		j.Emit(Unpaused{Account: opts.From})

		return nil
	})
}

// TransferPayeeship proposes a new payee for the keeper. Only the current
// payee may propose.
func (r *Registry) TransferPayeeship(_ context.Context, opts types.TransactOpts, keeper, proposed common.Address) error {
	return r.transact(func(j *util.Journal) error {
		return r.keepers.TransferPayeeship(j, keeper, opts.From, proposed)
	})
}

func (r *Registry) AcceptPayeeship(_ context.Context, opts types.TransactOpts, keeper common.Address) error {
	return r.transact(func(j *util.Journal) error {
		return r.keepers.AcceptPayeeship(j, keeper, opts.From)
	})
}

func (r *Registry) Address() common.Address {
	return r.address
}

func (r *Registry) Owner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ownable.Owner()
}

func (r *Registry) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.paused
}

func (r *Registry) GetConfig() Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.config.clone()
}

func (r *Registry) GetRegistrar() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registrar
}

func (r *Registry) GetUpkeep(id types.UpkeepIdentifier) (types.Upkeep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.upkeeps.Get(id)
}

func (r *Registry) GetUpkeepCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.upkeeps.Count()
}

func (r *Registry) GetCanceledUpkeepList() []types.UpkeepIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.upkeeps.CanceledList()
}

func (r *Registry) IsActive(id types.UpkeepIdentifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.upkeeps.IsActive(id, r.backend.BlockNumber())
}

func (r *Registry) GetKeeperList() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.keepers.List()
}

func (r *Registry) GetKeeperInfo(keeper common.Address) (types.KeeperInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.keepers.Info(keeper)
}

// GetMaxPaymentForGas quotes the payment for a perform consuming the full
// gas amount at current prices.
func (r *Registry) GetMaxPaymentForGas(ctx context.Context, gasLimit uint32) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prices := r.oracle.CurrentPrices(ctx, r.config, r.backend.Timestamp())
	gasWei := effectiveGasPrice(prices.FastGasWei, r.config.GasCeilingMultiplier, nil)

	return ComputeMaxPayment(gasLimit, gasWei, prices.LinkNative, r.config.PaymentPremiumPPB)
}

// Logs returns every committed event in emit order.
func (r *Registry) Logs() []types.Log {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.logs)
}

var _ types.TokenReceiver = (*Registry)(nil)
