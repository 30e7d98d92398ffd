package chain

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
}

func newBlock(parent common.Hash, number uint64, ts time.Time) Block {
	var buf [16]byte

	binary.BigEndian.PutUint64(buf[:8], number)
	binary.BigEndian.PutUint64(buf[8:], uint64(ts.Unix()))

	return Block{
		Number:     number,
		Hash:       crypto.Keccak256Hash(parent.Bytes(), buf[:]),
		ParentHash: parent,
		Timestamp:  ts,
	}
}
