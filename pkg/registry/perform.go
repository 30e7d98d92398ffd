package registry

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

// CheckUpkeep simulates the target eligibility check for the caller. It only
// runs as a simulated call. Unknown, inactive and unfunded upkeeps return an
// error; every other ineligible outcome is reported through the result
// failure reason. A zero From address skips the keeper specific checks.
//
// The registry lock is held only while quoting, so checks of different
// upkeeps run concurrently and the target may read the registry.
func (r *Registry) CheckUpkeep(ctx context.Context, opts types.CallOpts, id types.UpkeepIdentifier) (types.CheckResult, error) {
	if !opts.Simulate {
		return types.CheckResult{}, fmt.Errorf("%w: checkUpkeep", types.ErrOnlySimulatedBackend)
	}

	result, call, err := r.prepareCheck(ctx, opts, id)
	if err != nil || call == nil {
		return result, err
	}

	var (
		needed      bool
		performData []byte
	)

	target, err := chain.ContractAt[types.KeeperCompatible](r.backend, call.target)
	if err == nil {
		meter := chain.NewGasMeter(call.gasLimit)

		err = util.Recover(r.logger, func() error {
			var checkErr error

			needed, performData, checkErr = target.CheckUpkeep(ctx, meter, call.checkData)

			return checkErr
		})
	}

	if err != nil {
		r.logger.Printf("check for upkeep %s reverted: %s", id, err)
		result.FailureReason = types.FailureReasonTargetCheckReverted

		return result, nil
	}

	if !needed {
		result.FailureReason = types.FailureReasonUpkeepNotNeeded

		return result, nil
	}

	result.Eligible = true
	result.PerformData = performData

	return result, nil
}

type checkCall struct {
	target    common.Address
	checkData []byte
	gasLimit  uint64
}

// prepareCheck quotes the upkeep under the lock. A nil call means the result
// is already final and the target is not consulted.
func (r *Registry) prepareCheck(ctx context.Context, opts types.CallOpts, id types.UpkeepIdentifier) (types.CheckResult, *checkCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	height := r.backend.BlockNumber()

	rec, err := r.upkeeps.get(id)
	if err != nil {
		return types.CheckResult{}, nil, err
	}

	if !rec.activeAt(height) || rec.balance.Sign() == 0 {
		return types.CheckResult{}, nil, fmt.Errorf("%w: upkeep %s", types.ErrNotExecutable, id)
	}

	prices := r.oracle.CurrentPrices(ctx, r.config, r.backend.Timestamp())
	gasWei := effectiveGasPrice(prices.FastGasWei, r.config.GasCeilingMultiplier, nil)

	result := types.CheckResult{
		UpkeepID:   id,
		MaxPayment: ComputeMaxPayment(rec.executeGas, gasWei, prices.LinkNative, r.config.PaymentPremiumPPB),
		GasLimit:   RequiredGasLimit(rec.executeGas),
		FastGasWei: prices.FastGasWei,
		LinkNative: prices.LinkNative,
	}

	if opts.From != (common.Address{}) {
		if !r.keepers.IsActive(opts.From) {
			result.FailureReason = types.FailureReasonKeeperInactive

			return result, nil, nil
		}

		if err := checkTurn(rec, opts.From, height); err != nil {
			result.FailureReason = types.FailureReasonMustTakeTurns

			return result, nil, nil
		}
	}

	if rec.balance.Cmp(result.MaxPayment) < 0 {
		result.FailureReason = types.FailureReasonInsufficientBalance

		return result, nil, nil
	}

	return result, &checkCall{
		target:    rec.target,
		checkData: slices.Clone(rec.checkData),
		gasLimit:  uint64(r.config.CheckGasLimit),
	}, nil
}

// performQuote carries a validated perform across the target call.
type performQuote struct {
	target     common.Address
	executeGas uint32
	height     uint64
	gasWei     *big.Int
	linkNative *big.Int
	premiumPPB uint32
	maxPayment *big.Int
}

// PerformUpkeep calls the target with performData and pays the caller from
// the upkeep balance. A failing target call is reported through the result
// and is still paid for.
//
// The max payment is reserved from the upkeep balance before the target is
// called without the registry lock, and settled afterwards. While the call
// is in flight a second perform of the same upkeep fails with ErrReentrant.
func (r *Registry) PerformUpkeep(ctx context.Context, opts types.TransactOpts, id types.UpkeepIdentifier, performData []byte) (types.PerformResult, error) {
	var quote performQuote

	err := r.transact(func(j *util.Journal) error {
		if _, ok := r.performing[id]; ok {
			return fmt.Errorf("%w: upkeep %s is already performing", types.ErrReentrant, id)
		}

		if err := r.whenNotPaused(); err != nil {
			return err
		}

		height := r.backend.BlockNumber()

		rec, err := r.upkeeps.get(id)
		if err != nil {
			return err
		}

		if !rec.activeAt(height) || rec.balance.Sign() == 0 {
			return fmt.Errorf("%w: upkeep %s", types.ErrNotExecutable, id)
		}

		if err := r.keepers.RequireActive(opts.From); err != nil {
			return err
		}

		if err := checkTurn(rec, opts.From, height); err != nil {
			return err
		}

		if err := requireGas(opts.GasLimit, rec.executeGas); err != nil {
			return err
		}

		prices := r.oracle.CurrentPrices(ctx, r.config, r.backend.Timestamp())

		quote = performQuote{
			target:     rec.target,
			executeGas: rec.executeGas,
			height:     height,
			gasWei:     effectiveGasPrice(prices.FastGasWei, r.config.GasCeilingMultiplier, opts.GasPrice),
			linkNative: prices.LinkNative,
			premiumPPB: r.config.PaymentPremiumPPB,
		}
		quote.maxPayment = ComputeMaxPayment(quote.executeGas, quote.gasWei, quote.linkNative, quote.premiumPPB)

		if err := r.upkeeps.Reserve(j, id, quote.maxPayment); err != nil {
			return err
		}

		r.performing[id] = struct{}{}

		return nil
	})

	if err != nil {
		return types.PerformResult{UpkeepID: id}, err
	}

	meter := chain.NewGasMeter(uint64(quote.executeGas))
	success := r.callTarget(ctx, quote.target, meter, performData)

	result := types.PerformResult{
		UpkeepID: id,
		Success:  success,
		GasUsed:  min(meter.Used(), uint64(quote.executeGas)),
	}
	result.Payment = ComputePayment(result.GasUsed, quote.gasWei, quote.linkNative, quote.premiumPPB)

	err = r.transact(func(j *util.Journal) error {
		delete(r.performing, id)

		if err := r.upkeeps.Refund(j, id, quote.maxPayment); err != nil {
			return err
		}

		if err := r.upkeeps.Charge(j, id, opts.From, result.Payment, quote.height); err != nil {
			return err
		}

		if err := r.keepers.Credit(j, opts.From, result.Payment); err != nil {
			return err
		}

		j.Emit(UpkeepPerformed{
			ID:          id,
			Success:     result.Success,
			From:        opts.From,
			Payment:     new(big.Int).Set(result.Payment),
			PerformData: append([]byte(nil), performData...),
		})

		return nil
	})

	if err != nil {
		return types.PerformResult{UpkeepID: id}, err
	}

	payment, _ := new(big.Float).SetInt(result.Payment).Float64()

	prommetrics.RegistryUpkeepsPerformed.WithLabelValues(strconv.FormatBool(result.Success)).Inc()
	prommetrics.RegistryKeeperPayments.Add(payment)

	return result, nil
}

// callTarget runs the target perform with the provided meter. Errors,
// panics, and missing code are all reported as an unsuccessful call.
func (r *Registry) callTarget(ctx context.Context, addr common.Address, meter types.GasMeter, performData []byte) bool {
	target, err := chain.ContractAt[types.KeeperCompatible](r.backend, addr)
	if err != nil {
		r.logger.Printf("perform target %s unavailable: %s", addr, err)

		return false
	}

	data := append([]byte(nil), performData...)

	err = util.Recover(r.logger, func() error {
		return target.PerformUpkeep(ctx, meter, data)
	})

	if err != nil {
		r.logger.Printf("perform on target %s failed: %s", addr, err)

		return false
	}

	return true
}

// checkTurn rejects a second perform in the block of the last perform, and
// a perform by the last keeper in the block right after it.
func checkTurn(rec *upkeepRecord, keeper common.Address, height uint64) error {
	if rec.lastKeeper == (common.Address{}) {
		return nil
	}

	if rec.lastPerformedBlock == height {
		return fmt.Errorf("%w: upkeep already performed in block %d", types.ErrMustTakeTurns, height)
	}

	if rec.lastKeeper == keeper && height == rec.lastPerformedBlock+1 {
		return fmt.Errorf("%w: %s performed in block %d", types.ErrMustTakeTurns, keeper, rec.lastPerformedBlock)
	}

	return nil
}

// requireGas meters the registry setup against the transaction gas limit and
// verifies enough remains for the target call and payment bookkeeping.
func requireGas(gasLimit uint64, executeGas uint32) error {
	tx := chain.NewGasMeter(gasLimit)

	if err := tx.Consume(intrinsicGas + performSetupGas); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInsufficientGas, err)
	}

	needed := uint64(executeGas) + gasCushion + performPaymentGas
	if tx.Remaining() < needed {
		return fmt.Errorf("%w: %d remaining, %d needed", types.ErrInsufficientGas, tx.Remaining(), needed)
	}

	return nil
}
