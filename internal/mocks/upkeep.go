package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var ErrCannotPerform = fmt.Errorf("cannot perform")

// UpkeepMock is a configurable target contract. A successful perform resets
// the check flag so the upkeep is not needed again until re-enabled.
type UpkeepMock struct {
	mu               sync.Mutex
	canCheck         bool
	canPerform       bool
	checkReverts     bool
	checkGasToBurn   uint64
	performGasToBurn uint64
	performData      []byte
	performed        [][]byte
}

func NewUpkeepMock() *UpkeepMock {
	return &UpkeepMock{}
}

func (m *UpkeepMock) SetCanCheck(value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canCheck = value
}

func (m *UpkeepMock) SetCanPerform(value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canPerform = value
}

func (m *UpkeepMock) SetCheckReverts(value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkReverts = value
}

func (m *UpkeepMock) SetCheckGasToBurn(value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkGasToBurn = value
}

func (m *UpkeepMock) SetPerformGasToBurn(value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.performGasToBurn = value
}

func (m *UpkeepMock) SetPerformData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.performData = append([]byte(nil), data...)
}

func (m *UpkeepMock) CanCheck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.canCheck
}

// Performed returns the perform data of every successful perform.
func (m *UpkeepMock) Performed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([][]byte(nil), m.performed...)
}

func (m *UpkeepMock) CheckUpkeep(_ context.Context, gas types.GasMeter, _ []byte) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := gas.Consume(m.checkGasToBurn); err != nil {
		return false, nil, err
	}

	if m.checkReverts {
		return false, nil, fmt.Errorf("check reverted")
	}

	return m.canCheck, append([]byte(nil), m.performData...), nil
}

func (m *UpkeepMock) PerformUpkeep(_ context.Context, gas types.GasMeter, performData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canPerform {
		return ErrCannotPerform
	}

	if err := gas.Consume(m.performGasToBurn); err != nil {
		return err
	}

	m.canCheck = false
	m.performed = append(m.performed, append([]byte(nil), performData...))

	return nil
}

var _ types.KeeperCompatible = (*UpkeepMock)(nil)
