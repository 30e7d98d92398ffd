package mocks

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

type MockToken struct {
	mock.Mock
}

func (_m *MockToken) Address() common.Address {
	ret := _m.Called()

	var r0 common.Address
	if rf, ok := ret.Get(0).(func() common.Address); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(common.Address)
		}
	}

	return r0
}

func (_m *MockToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	ret := _m.Called(ctx, owner)

	var r0 *big.Int
	if rf, ok := ret.Get(0).(func(context.Context, common.Address) *big.Int); ok {
		r0 = rf(ctx, owner)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*big.Int)
		}
	}

	return r0, ret.Error(1)
}

func (_m *MockToken) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	ret := _m.Called(ctx, from, to, amount)

	return ret.Error(0)
}

func (_m *MockToken) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	ret := _m.Called(ctx, spender, from, to, amount)

	return ret.Error(0)
}

func (_m *MockToken) TransferAndCall(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) error {
	ret := _m.Called(ctx, from, to, amount, data)

	return ret.Error(0)
}

var _ types.Token = (*MockToken)(nil)
