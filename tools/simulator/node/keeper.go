package node

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keeper is a simulated keeper node identity. The sending address and the
// payee address are derived from freshly generated secp256k1 keys.
type Keeper struct {
	Name     string
	Address  common.Address
	Payee    common.Address
	GasLimit uint64
	GasPrice *big.Int
}

func NewKeeper(name string, gasLimit uint64, gasPrice *big.Int) (*Keeper, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: sending key: %w", ErrKeeperSetup, err)
	}

	payeeKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: payee key: %w", ErrKeeperSetup, err)
	}

	return &Keeper{
		Name:     name,
		Address:  crypto.PubkeyToAddress(key.PublicKey),
		Payee:    crypto.PubkeyToAddress(payeeKey.PublicKey),
		GasLimit: gasLimit,
		GasPrice: gasPrice,
	}, nil
}
