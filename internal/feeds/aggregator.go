package feeds

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// MockAggregator is a price feed whose answer is set directly.
type MockAggregator struct {
	mu       sync.RWMutex
	decimals uint8
	round    types.RoundData
	err      error
}

func NewMockAggregator(decimals uint8, answer *big.Int, updatedAt time.Time) *MockAggregator {
	agg := &MockAggregator{decimals: decimals}
	agg.UpdateRoundData(big.NewInt(1), answer, updatedAt, updatedAt)

	return agg
}

func (a *MockAggregator) Decimals() uint8 {
	return a.decimals
}

// UpdateAnswer starts a new round with the answer.
func (a *MockAggregator) UpdateAnswer(answer *big.Int, at time.Time) {
	a.mu.RLock()
	next := new(big.Int).Add(a.round.RoundID, big.NewInt(1))
	a.mu.RUnlock()

	a.UpdateRoundData(next, answer, at, at)
}

func (a *MockAggregator) UpdateRoundData(roundID, answer *big.Int, startedAt, updatedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.round = types.RoundData{
		RoundID:         new(big.Int).Set(roundID),
		Answer:          new(big.Int).Set(answer),
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: new(big.Int).Set(roundID),
	}
}

// SetError makes every read fail with err until cleared with nil.
func (a *MockAggregator) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.err = err
}

func (a *MockAggregator) LatestRoundData(_ context.Context) (types.RoundData, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.err != nil {
		return types.RoundData{}, a.err
	}

	round := a.round
	round.RoundID = new(big.Int).Set(a.round.RoundID)
	round.Answer = new(big.Int).Set(a.round.Answer)
	round.AnsweredInRound = new(big.Int).Set(a.round.AnsweredInRound)

	return round, nil
}

var _ types.PriceFeed = (*MockAggregator)(nil)
