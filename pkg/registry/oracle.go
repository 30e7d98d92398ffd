package registry

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Prices is a snapshot of both price feeds after fallback substitution.
type Prices struct {
	FastGasWei      *big.Int
	LinkNative      *big.Int
	FastGasStale    bool
	LinkNativeStale bool
}

// Stale indicates whether either price came from a fallback value.
func (p Prices) Stale() bool {
	return p.FastGasStale || p.LinkNativeStale
}

// PriceOracle reads the gas and token price feeds. A feed that errors,
// reports a non-positive answer, or is older than the staleness window is
// replaced by the configured fallback. Reads never fail.
type PriceOracle struct {
	fastGas    types.PriceFeed
	linkNative types.PriceFeed
	logger     *log.Logger
}

func NewPriceOracle(fastGas, linkNative types.PriceFeed, logger *log.Logger) *PriceOracle {
	return &PriceOracle{
		fastGas:    fastGas,
		linkNative: linkNative,
		logger:     logger,
	}
}

func (o *PriceOracle) CurrentPrices(ctx context.Context, conf Config, now time.Time) Prices {
	gasWei, gasStale := o.read(ctx, o.fastGas, prommetrics.FeedFastGas, conf.StalenessSeconds, conf.FallbackGasPrice, now)
	linkNative, linkStale := o.read(ctx, o.linkNative, prommetrics.FeedLinkNative, conf.StalenessSeconds, conf.FallbackLinkPrice, now)

	return Prices{
		FastGasWei:      gasWei,
		LinkNative:      linkNative,
		FastGasStale:    gasStale,
		LinkNativeStale: linkStale,
	}
}

func (o *PriceOracle) read(ctx context.Context, feed types.PriceFeed, name string, staleness uint32, fallback *big.Int, now time.Time) (*big.Int, bool) {
	useFallback := func(reason string) (*big.Int, bool) {
		o.logger.Printf("using fallback %s price %s: %s", name, fallback, reason)
		prommetrics.RegistryPriceFeedFallbacks.WithLabelValues(name).Inc()

		return new(big.Int).Set(fallback), true
	}

	if feed == nil {
		return useFallback("no feed configured")
	}

	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return useFallback(err.Error())
	}

	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return useFallback("non-positive answer")
	}

	if staleness > 0 && now.Sub(round.UpdatedAt) > time.Duration(staleness)*time.Second {
		return useFallback("feed stale since " + round.UpdatedAt.UTC().Format(time.RFC3339))
	}

	return new(big.Int).Set(round.Answer), false
}
