package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

type UpkeepRegistered struct {
	ID         types.UpkeepIdentifier
	ExecuteGas uint32
	Admin      common.Address
}

type UpkeepPerformed struct {
	ID          types.UpkeepIdentifier
	Success     bool
	From        common.Address
	Payment     *big.Int
	PerformData []byte
}

type UpkeepCanceled struct {
	ID            types.UpkeepIdentifier
	AtBlockHeight uint64
}

type FundsAdded struct {
	ID     types.UpkeepIdentifier
	From   common.Address
	Amount *big.Int
}

type FundsWithdrawn struct {
	ID     types.UpkeepIdentifier
	Amount *big.Int
	To     common.Address
}

type FundsRecovered struct {
	To     common.Address
	Amount *big.Int
}

type ConfigSet struct {
	Config Config
}

type RegistrarChanged struct {
	From common.Address
	To   common.Address
}

type KeeperAdded struct {
	Keeper common.Address
	Payee  common.Address
}

type KeeperRemoved struct {
	Keeper common.Address
}

type KeepersUpdated struct {
	Keepers []common.Address
	Payees  []common.Address
}

type PaymentWithdrawn struct {
	Keeper common.Address
	Amount *big.Int
	To     common.Address
	Payee  common.Address
}

type PayeeshipTransferRequested struct {
	Keeper common.Address
	From   common.Address
	To     common.Address
}

type PayeeshipTransferred struct {
	Keeper common.Address
	From   common.Address
	To     common.Address
}

type Paused struct {
	Account common.Address
}

type Unpaused struct {
	Account common.Address
}

func (UpkeepRegistered) EventName() string           { return "UpkeepRegistered" }
func (UpkeepPerformed) EventName() string            { return "UpkeepPerformed" }
func (UpkeepCanceled) EventName() string             { return "UpkeepCanceled" }
func (FundsAdded) EventName() string                 { return "FundsAdded" }
func (FundsWithdrawn) EventName() string             { return "FundsWithdrawn" }
func (FundsRecovered) EventName() string             { return "FundsRecovered" }
func (ConfigSet) EventName() string                  { return "ConfigSet" }
func (RegistrarChanged) EventName() string           { return "RegistrarChanged" }
func (KeeperAdded) EventName() string                { return "KeeperAdded" }
func (KeeperRemoved) EventName() string              { return "KeeperRemoved" }
func (KeepersUpdated) EventName() string             { return "KeepersUpdated" }
func (PaymentWithdrawn) EventName() string           { return "PaymentWithdrawn" }
func (PayeeshipTransferRequested) EventName() string { return "PayeeshipTransferRequested" }
func (PayeeshipTransferred) EventName() string       { return "PayeeshipTransferred" }
func (Paused) EventName() string                     { return "Paused" }
func (Unpaused) EventName() string                   { return "Unpaused" }
