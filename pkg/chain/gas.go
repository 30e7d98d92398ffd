package chain

import (
	"fmt"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// GasMeter is a single call frame gas budget.
type GasMeter struct {
	limit uint64
	used  uint64
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

func (m *GasMeter) Consume(amount uint64) error {
	remaining := m.Remaining()
	if amount > remaining {
		m.used = m.limit

		return fmt.Errorf("%w: %d requested with %d remaining", types.ErrOutOfGas, amount, remaining)
	}

	m.used += amount

	return nil
}

func (m *GasMeter) Remaining() uint64 {
	return m.limit - m.used
}

func (m *GasMeter) Used() uint64 {
	return m.used
}

func (m *GasMeter) Limit() uint64 {
	return m.limit
}
