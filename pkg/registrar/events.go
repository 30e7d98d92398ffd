package registrar

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

type RegistrationRequested struct {
	Hash           common.Hash
	Name           string
	EncryptedEmail []byte
	UpkeepContract common.Address
	GasLimit       uint32
	AdminAddress   common.Address
	CheckData      []byte
	Amount         *big.Int
	Source         uint8
}

type RegistrationApproved struct {
	Hash        common.Hash
	DisplayName string
	UpkeepID    types.UpkeepIdentifier
}

type RegistrationRejected struct {
	Hash common.Hash
}

type ConfigChanged struct {
	Config Config
}

func (RegistrationRequested) EventName() string { return "RegistrationRequested" }
func (RegistrationApproved) EventName() string  { return "RegistrationApproved" }
func (RegistrationRejected) EventName() string  { return "RegistrationRejected" }
func (ConfigChanged) EventName() string         { return "ConfigChanged" }
