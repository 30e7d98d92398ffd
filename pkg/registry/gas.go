package registry

// Gas charged by the registry around the target call. The sum is the
// overhead added to both the minimum transaction gas limit and every keeper
// payment.
const (
	intrinsicGas      uint64 = 21_000
	performSetupGas   uint64 = 9_000
	gasCushion        uint64 = 5_000
	performPaymentGas uint64 = 45_000

	RegistryGasOverhead = intrinsicGas + performSetupGas + gasCushion + performPaymentGas

	// CancellationDelay is the number of blocks an admin cancellation waits
	// before taking effect.
	CancellationDelay uint64 = 50
)

// RequiredGasLimit is the smallest transaction gas limit that can perform an
// upkeep with the provided execute gas.
func RequiredGasLimit(executeGas uint32) uint64 {
	return uint64(executeGas) + RegistryGasOverhead
}
