package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	Uint256, _ = abi.NewType("uint256", "", nil)

	upkeepIDArgs = abi.Arguments{{Name: "id", Type: Uint256}}
)

// MustGetABI returns an abi.ABI object associated with the given JSON
// representation of the ABI. It panics if it is unable to do so.
func MustGetABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic("could not parse ABI: " + err.Error())
	}

	return parsed
}

// EncodeUpkeepID abi encodes an upkeep id as a single uint256. This is the
// payload expected when funding an upkeep through transferAndCall.
func EncodeUpkeepID(id types.UpkeepIdentifier) ([]byte, error) {
	return upkeepIDArgs.Pack(id.BigInt())
}

// DecodeUpkeepID decodes a payload created by EncodeUpkeepID.
func DecodeUpkeepID(data []byte) (types.UpkeepIdentifier, error) {
	var id types.UpkeepIdentifier

	if len(data) != 32 {
		return id, fmt.Errorf("%w: expected 32 bytes, got %d", types.ErrInvalidPayload, len(data))
	}

	values, err := upkeepIDArgs.UnpackValues(data)
	if err != nil {
		return id, fmt.Errorf("%w: %w", types.ErrInvalidPayload, errors.Wrapf(err, "unpack upkeep id: %x", data))
	}

	value, ok := values[0].(*big.Int)
	if !ok || !id.FromBigInt(value) {
		return id, fmt.Errorf("%w: upkeep id", types.ErrInvalidPayload)
	}

	return id, nil
}
