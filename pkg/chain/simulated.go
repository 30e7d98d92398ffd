package chain

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

const (
	defaultHistoryDepth = 256
	DefaultBlockCadence = 12 * time.Second
)

var (
	ErrAlreadyDeployed = fmt.Errorf("contract already deployed")
	ErrNotDeployed     = fmt.Errorf("no contract at address")
)

// SimulatedChain is an in-memory chain that produces blocks on demand and
// resolves deployed contracts by address.
type SimulatedChain struct {
	// provided dependencies
	logger *log.Logger

	// internal state values
	mu        sync.RWMutex
	cadence   time.Duration
	head      Block
	offset    time.Duration
	history   *util.SortedKeyMap[uint64, Block]
	contracts map[common.Address]any
	nonces    map[common.Address]uint64
}

func NewSimulatedChain(genesis uint64, start time.Time, cadence time.Duration, logger *log.Logger) *SimulatedChain {
	if cadence <= 0 {
		cadence = DefaultBlockCadence
	}

	head := newBlock(common.Hash{}, genesis, start)

	history := util.NewSortedKeyMap[uint64, Block]()
	history.Set(head.Number, head)

	return &SimulatedChain{
		logger:    telemetry.WrapLogger(logger, "chain"),
		cadence:   cadence,
		head:      head,
		history:   history,
		contracts: make(map[common.Address]any),
		nonces:    make(map[common.Address]uint64),
	}
}

func (c *SimulatedChain) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.head.Number
}

// Timestamp is the head block time plus any time advanced since.
func (c *SimulatedChain) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.head.Timestamp.Add(c.offset)
}

func (c *SimulatedChain) Head() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.head
}

// Mine produces a single block one cadence after the current timestamp.
func (c *SimulatedChain) Mine() Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := newBlock(c.head.Hash, c.head.Number+1, c.head.Timestamp.Add(c.offset).Add(c.cadence))

	c.head = next
	c.offset = 0
	c.history.Set(next.Number, next)

	if c.history.Len() > defaultHistoryDepth {
		c.history.Prune(next.Number - defaultHistoryDepth + 1)
	}

	return next
}

func (c *SimulatedChain) MineN(n int) Block {
	var head Block

	for i := 0; i < n; i++ {
		head = c.Mine()
	}

	if n <= 0 {
		return c.Head()
	}

	return head
}

// AdvanceTime moves the chain clock forward without producing a block.
func (c *SimulatedChain) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset += d
}

// BlockByNumber returns a block from recent history.
func (c *SimulatedChain) BlockByNumber(number uint64) (Block, bool) {
	return c.history.Get(number)
}

// History returns up to count recent blocks ordered newest first.
func (c *SimulatedChain) History(count int) []Block {
	keys := c.history.Keys(count)
	blocks := make([]Block, 0, len(keys))

	for _, key := range keys {
		if block, ok := c.history.Get(key); ok {
			blocks = append(blocks, block)
		}
	}

	return blocks
}

// NewContractAddress derives the address of the next contract created by
// the deployer, incrementing the deployer nonce.
func (c *SimulatedChain) NewContractAddress(deployer common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := c.nonces[deployer]
	c.nonces[deployer] = nonce + 1

	return crypto.CreateAddress(deployer, nonce)
}

// Deploy places contract code at the address.
func (c *SimulatedChain) Deploy(addr common.Address, contract any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}

	c.contracts[addr] = contract
	c.logger.Printf("deployed %T at %s in block %d", contract, addr, c.head.Number)

	return nil
}

func (c *SimulatedChain) CodeAt(addr common.Address) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	contract, ok := c.contracts[addr]

	return contract, ok
}

// ContractAt resolves the contract at the address as type T.
func ContractAt[T any](c interface {
	CodeAt(common.Address) (any, bool)
}, addr common.Address) (T, error) {
	var zero T

	code, ok := c.CodeAt(addr)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotDeployed, addr)
	}

	contract, ok := code.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s does not implement %T", ErrNotDeployed, addr, zero)
	}

	return contract, nil
}

var _ types.Chain = (*SimulatedChain)(nil)
