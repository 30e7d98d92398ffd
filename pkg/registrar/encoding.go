package registrar

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

const registrarABIJSON = `[{
	"name":"register",
	"type":"function",
	"inputs":[
		{"name":"name","type":"string"},
		{"name":"encryptedEmail","type":"bytes"},
		{"name":"upkeepContract","type":"address"},
		{"name":"gasLimit","type":"uint32"},
		{"name":"adminAddress","type":"address"},
		{"name":"checkData","type":"bytes"},
		{"name":"amount","type":"uint96"},
		{"name":"source","type":"uint8"}
	],
	"outputs":[]
}]`

var (
	registrarABI = chain.MustGetABI(registrarABIJSON)

	stringType, _  = abi.NewType("string", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint32Type, _  = abi.NewType("uint32", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
	uint96Type, _  = abi.NewType("uint96", "", nil)
	uint8Type, _   = abi.NewType("uint8", "", nil)

	requestHashArgs = abi.Arguments{
		{Name: "name", Type: stringType},
		{Name: "upkeepContract", Type: addressType},
		{Name: "gasLimit", Type: uint32Type},
		{Name: "adminAddress", Type: addressType},
		{Name: "checkData", Type: bytesType},
		{Name: "amount", Type: uint96Type},
		{Name: "source", Type: uint8Type},
	}
)

// Request is the payload of a registration.
type Request struct {
	Name           string
	EncryptedEmail []byte
	UpkeepContract common.Address
	GasLimit       uint32
	AdminAddress   common.Address
	CheckData      []byte
	Amount         *big.Int
	Source         uint8
}

// Hash identifies a request by its payload. The encrypted email is not part
// of the hash.
func (r Request) Hash() (common.Hash, error) {
	amount := r.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}

	encoded, err := requestHashArgs.Pack(r.Name, r.UpkeepContract, r.GasLimit, r.AdminAddress, r.CheckData, amount, r.Source)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", types.ErrInvalidPayload, errors.Wrap(err, "pack request"))
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(encoded)

	return common.BytesToHash(hasher.Sum(nil)), nil
}

// EncodeRegisterCall produces the transferAndCall data that registers the
// request.
func EncodeRegisterCall(r Request) ([]byte, error) {
	amount := r.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}

	data, err := registrarABI.Pack("register", r.Name, r.EncryptedEmail, r.UpkeepContract, r.GasLimit, r.AdminAddress, r.CheckData, amount, r.Source)
	if err != nil {
		return nil, errors.Wrap(err, "pack register call")
	}

	return data, nil
}

// DecodeRegisterCall parses data produced by EncodeRegisterCall.
func DecodeRegisterCall(data []byte) (Request, error) {
	method := registrarABI.Methods["register"]

	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return Request{}, fmt.Errorf("%w: must call register", types.ErrInvalidPayload)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", types.ErrInvalidPayload, errors.Wrap(err, "unpack register call"))
	}

	if len(values) != 8 {
		return Request{}, fmt.Errorf("%w: expected 8 arguments, got %d", types.ErrInvalidPayload, len(values))
	}

	var (
		req Request
		ok  [8]bool
	)

	req.Name, ok[0] = values[0].(string)
	req.EncryptedEmail, ok[1] = values[1].([]byte)
	req.UpkeepContract, ok[2] = values[2].(common.Address)
	req.GasLimit, ok[3] = values[3].(uint32)
	req.AdminAddress, ok[4] = values[4].(common.Address)
	req.CheckData, ok[5] = values[5].([]byte)
	req.Amount, ok[6] = values[6].(*big.Int)
	req.Source, ok[7] = values[7].(uint8)

	for idx, valid := range ok {
		if !valid {
			return Request{}, fmt.Errorf("%w: argument %d has type %T", types.ErrInvalidPayload, idx, values[idx])
		}
	}

	return req, nil
}
