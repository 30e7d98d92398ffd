package registry

import (
	"fmt"
	"math/big"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

const (
	DefaultPaymentPremiumPPB    uint32 = 250_000_000
	DefaultBlockCountPerTurn    uint32 = 3
	DefaultCheckGasLimit        uint32 = 20_000_000
	DefaultStalenessSeconds     uint32 = 43_820
	DefaultGasCeilingMultiplier uint16 = 1
	DefaultMinExecuteGas        uint32 = 2_300
	DefaultMaxExecuteGas        uint32 = 5_000_000
)

var (
	DefaultFallbackGasPrice  = big.NewInt(200)
	DefaultFallbackLinkPrice = big.NewInt(200_000_000)
)

// Config is the owner controlled registry configuration.
type Config struct {
	// PaymentPremiumPPB is the premium paid to keepers on top of gas cost, in
	// parts per billion
	PaymentPremiumPPB uint32 `json:"paymentPremiumPPB" yaml:"paymentPremiumPPB"`
	// BlockCountPerTurn is the number of blocks each keeper is expected to
	// service upkeeps before rotating
	BlockCountPerTurn uint32 `json:"blockCountPerTurn" yaml:"blockCountPerTurn"`
	// CheckGasLimit is the gas available to a target eligibility check
	CheckGasLimit uint32 `json:"checkGasLimit" yaml:"checkGasLimit"`
	// StalenessSeconds is the maximum feed age before fallback prices apply.
	// Zero disables staleness checks.
	StalenessSeconds     uint32   `json:"stalenessSeconds" yaml:"stalenessSeconds"`
	GasCeilingMultiplier uint16   `json:"gasCeilingMultiplier" yaml:"gasCeilingMultiplier"`
	MinExecuteGas        uint32   `json:"minExecuteGas" yaml:"minExecuteGas"`
	MaxExecuteGas        uint32   `json:"maxExecuteGas" yaml:"maxExecuteGas"`
	FallbackGasPrice     *big.Int `json:"fallbackGasPrice" yaml:"fallbackGasPrice"`
	FallbackLinkPrice    *big.Int `json:"fallbackLinkPrice" yaml:"fallbackLinkPrice"`
}

func DefaultConfig() Config {
	return Config{
		PaymentPremiumPPB:    DefaultPaymentPremiumPPB,
		BlockCountPerTurn:    DefaultBlockCountPerTurn,
		CheckGasLimit:        DefaultCheckGasLimit,
		StalenessSeconds:     DefaultStalenessSeconds,
		GasCeilingMultiplier: DefaultGasCeilingMultiplier,
		MinExecuteGas:        DefaultMinExecuteGas,
		MaxExecuteGas:        DefaultMaxExecuteGas,
		FallbackGasPrice:     new(big.Int).Set(DefaultFallbackGasPrice),
		FallbackLinkPrice:    new(big.Int).Set(DefaultFallbackLinkPrice),
	}
}

func (c Config) Validate() error {
	if c.BlockCountPerTurn == 0 {
		return fmt.Errorf("%w: block count per turn must be positive", types.ErrInvalidConfig)
	}

	if c.GasCeilingMultiplier == 0 {
		return fmt.Errorf("%w: gas ceiling multiplier must be positive", types.ErrInvalidConfig)
	}

	if c.MinExecuteGas > c.MaxExecuteGas {
		return fmt.Errorf("%w: execute gas range [%d, %d] is empty", types.ErrInvalidConfig, c.MinExecuteGas, c.MaxExecuteGas)
	}

	if c.FallbackGasPrice == nil || c.FallbackGasPrice.Sign() <= 0 {
		return fmt.Errorf("%w: fallback gas price must be positive", types.ErrInvalidConfig)
	}

	if c.FallbackLinkPrice == nil || c.FallbackLinkPrice.Sign() <= 0 {
		return fmt.Errorf("%w: fallback link price must be positive", types.ErrInvalidConfig)
	}

	return nil
}

func (c Config) clone() Config {
	c.FallbackGasPrice = new(big.Int).Set(c.FallbackGasPrice)
	c.FallbackLinkPrice = new(big.Int).Set(c.FallbackLinkPrice)

	return c
}
