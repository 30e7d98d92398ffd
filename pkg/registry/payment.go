package registry

import (
	"math/big"
)

var (
	tokenDivisibility = big.NewInt(1e18)
	ppbBase           = big.NewInt(1e9)
)

// ComputePayment converts gas into juels:
//
//	base    = gasWei * (gasUsed + RegistryGasOverhead) * 1e18 / linkNative
//	premium = base * premiumPPB / 1e9
//
// All division rounds down. A non-positive linkNative yields zero.
func ComputePayment(gasUsed uint64, gasWei, linkNative *big.Int, premiumPPB uint32) *big.Int {
	if gasWei == nil || linkNative == nil || linkNative.Sign() <= 0 {
		return big.NewInt(0)
	}

	gas := new(big.Int).SetUint64(gasUsed)
	gas.Add(gas, new(big.Int).SetUint64(RegistryGasOverhead))

	base := new(big.Int).Mul(gasWei, gas)
	base.Mul(base, tokenDivisibility)
	base.Div(base, linkNative)

	premium := new(big.Int).Mul(base, new(big.Int).SetUint64(uint64(premiumPPB)))
	premium.Div(premium, ppbBase)

	return base.Add(base, premium)
}

// ComputeMaxPayment is the payment for a perform that consumes the full
// execute gas budget.
func ComputeMaxPayment(executeGas uint32, gasWei, linkNative *big.Int, premiumPPB uint32) *big.Int {
	return ComputePayment(uint64(executeGas), gasWei, linkNative, premiumPPB)
}

// effectiveGasPrice applies the ceiling multiplier to the feed price and caps
// the result at the transaction gas price when one is provided.
func effectiveGasPrice(fastGasWei *big.Int, multiplier uint16, txGasPrice *big.Int) *big.Int {
	price := new(big.Int).Mul(fastGasWei, big.NewInt(int64(multiplier)))

	if txGasPrice != nil && txGasPrice.Sign() > 0 && txGasPrice.Cmp(price) < 0 {
		price.Set(txGasPrice)
	}

	return price
}
