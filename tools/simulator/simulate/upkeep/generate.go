package upkeep

import (
	"fmt"
	"math/big"

	"github.com/Maldris/mathparse"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

var (
	ErrUpkeepGeneration = fmt.Errorf("failed to generate upkeep")
)

// SimulatedUpkeep is the generated description of one upkeep contract and
// its registration.
type SimulatedUpkeep struct {
	Name           string
	CreateInBlock  uint64
	ExecuteGas     uint32
	CheckGas       uint64
	PerformGas     uint64
	Funding        *big.Int
	AlwaysEligible bool
	EligibleAt     []uint64
	Expected       bool
}

func GenerateAllUpkeeps(plan config.SimulationPlan) ([]SimulatedUpkeep, error) {
	generated := make([]SimulatedUpkeep, 0)
	limit := plan.Blocks.Genesis + uint64(plan.Blocks.Duration)

	for idx, event := range plan.GenerateUpkeeps {
		simulated, err := generateSimulatedUpkeeps(idx, event, plan.Blocks.Genesis, limit)
		if err != nil {
			return nil, fmt.Errorf("%w at index %d", err, idx)
		}

		generated = append(generated, simulated...)
	}

	return generated, nil
}

func generateSimulatedUpkeeps(eventIdx int, event config.GenerateUpkeepEvent, start, limit uint64) ([]SimulatedUpkeep, error) {
	if event.Funding == nil || event.Funding.Sign() <= 0 {
		return nil, fmt.Errorf("%w: funding must be positive", ErrUpkeepGeneration)
	}

	if event.EligibilityFunc == "always" || event.EligibilityFunc == "never" || event.EligibilityFunc == "" {
		return generateBasicSimulatedUpkeeps(eventIdx, event, event.EligibilityFunc == "always"), nil
	}

	return generateEligibilityFuncSimulatedUpkeeps(eventIdx, event, start, limit)
}

func newSimulatedUpkeep(eventIdx, y int, event config.GenerateUpkeepEvent) SimulatedUpkeep {
	return SimulatedUpkeep{
		Name:          fmt.Sprintf("upkeep %d.%d", eventIdx, y),
		CreateInBlock: event.TriggerBlock,
		ExecuteGas:    event.ExecuteGas,
		CheckGas:      event.CheckGas,
		PerformGas:    event.PerformGas,
		Funding:       new(big.Int).Set(event.Funding),
		EligibleAt:    make([]uint64, 0),
		Expected:      event.Expected == config.AllExpected,
	}
}

func generateBasicSimulatedUpkeeps(eventIdx int, event config.GenerateUpkeepEvent, alwaysEligible bool) []SimulatedUpkeep {
	generated := make([]SimulatedUpkeep, 0, event.Count)

	for y := 1; y <= event.Count; y++ {
		simulated := newSimulatedUpkeep(eventIdx, y, event)
		simulated.AlwaysEligible = alwaysEligible

		generated = append(generated, simulated)
	}

	return generated
}

func generateEligibilityFuncSimulatedUpkeeps(eventIdx int, event config.GenerateUpkeepEvent, start, limit uint64) ([]SimulatedUpkeep, error) {
	generated := make([]SimulatedUpkeep, 0, event.Count)
	offset := mathparse.NewParser(event.OffsetFunc)

	offset.Resolve()

	for y := 1; y <= event.Count; y++ {
		sym := newSimulatedUpkeep(eventIdx, y, event)

		var genesis uint64
		if offset.FoundResult() {
			// a constant offset applies to every upkeep
			genesis = start
			if value := offset.GetValueResult(); value > 0 {
				genesis += uint64(value)
			}
		} else {
			// offset relative to the upkeep's position in the event
			g, err := calcFromTokens(offset.GetTokens(), big.NewInt(int64(y)))
			if err != nil {
				return nil, err
			}

			genesis = start
			if g.IsPositive() {
				genesis += g.BigInt().Uint64()
			}
		}

		// eligibility never begins before the upkeep exists
		if genesis < event.TriggerBlock {
			genesis = event.TriggerBlock
		}

		if err := generateEligibles(&sym, genesis, limit, event.EligibilityFunc); err != nil {
			return nil, err
		}

		generated = append(generated, sym)
	}

	return generated, nil
}

func operate(a, b decimal.Decimal, op string) decimal.Decimal {
	switch op {
	case "+":
		return a.Add(b)
	case "*":
		return a.Mul(b)
	case "-":
		return a.Sub(b)
	default:
	}

	return decimal.Zero
}

func generateEligibles(upkeep *SimulatedUpkeep, genesis, limit uint64, f string) error {
	p := mathparse.NewParser(f)
	p.Resolve()

	if p.FoundResult() {
		return fmt.Errorf("%w: simple value unsupported", ErrUpkeepGeneration)
	}

	var (
		i         int64
		nextValue uint64
		tokens    = p.GetTokens()
	)

	for nextValue < limit {
		if nextValue >= genesis && (len(upkeep.EligibleAt) == 0 || upkeep.EligibleAt[len(upkeep.EligibleAt)-1] < nextValue) {
			upkeep.EligibleAt = append(upkeep.EligibleAt, nextValue)
		}

		value, err := calcFromTokens(tokens, big.NewInt(i))
		if err != nil {
			return err
		}

		step := value.Round(0)
		if !step.IsPositive() && i > 0 {
			return fmt.Errorf("%w: eligibility function '%s' does not increase", ErrUpkeepGeneration, f)
		}

		next := genesis + step.BigInt().Uint64()
		if step.IsNegative() {
			next = genesis
		}

		if next <= nextValue && i > 0 {
			return fmt.Errorf("%w: eligibility function '%s' does not increase", ErrUpkeepGeneration, f)
		}

		nextValue = next
		i++
	}

	return nil
}

func calcFromTokens(tokens []mathparse.Token, x *big.Int) (decimal.Decimal, error) {
	value := decimal.NewFromInt(0)
	action := "+"

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		switch token.Type {
		case 2, 3:
			var tVal decimal.Decimal

			if token.Value == "x" {
				tVal = decimal.NewFromBigInt(x, int32(0))
			} else {
				tVal = decimal.NewFromFloat(token.ParseValue)
			}

			value = operate(value, tVal, action)
		case 4:
			action = token.Value
		default:
		}
	}

	return value, nil
}
