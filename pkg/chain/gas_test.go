package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func TestGasMeter(t *testing.T) {
	meter := NewGasMeter(100)

	assert.NoError(t, meter.Consume(60))
	assert.Equal(t, uint64(60), meter.Used())
	assert.Equal(t, uint64(40), meter.Remaining())

	assert.NoError(t, meter.Consume(40))
	assert.Equal(t, uint64(0), meter.Remaining())

	assert.ErrorIs(t, meter.Consume(1), types.ErrOutOfGas)
	assert.Equal(t, uint64(100), meter.Limit())
}

func TestGasMeter_OutOfGasUsesEverything(t *testing.T) {
	meter := NewGasMeter(100)

	assert.ErrorIs(t, meter.Consume(101), types.ErrOutOfGas)
	assert.Equal(t, uint64(100), meter.Used())
}
