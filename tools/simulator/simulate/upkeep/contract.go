package upkeep

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	ErrNotEligible = fmt.Errorf("upkeep not eligible")

	performDataArgs = abi.Arguments{{Name: "eligibleBlock", Type: chain.Uint256}}
)

// Contract is a keeper compatible target that follows the eligibility
// schedule of a SimulatedUpkeep. Each scheduled block can be served once; a
// perform serves every scheduled block up to the one named in the perform
// data.
type Contract struct {
	mu       sync.Mutex
	backend  types.Chain
	upkeep   SimulatedUpkeep
	served   int
	performs []uint64
}

func NewContract(backend types.Chain, upkeep SimulatedUpkeep) *Contract {
	return &Contract{
		backend:  backend,
		upkeep:   upkeep,
		performs: make([]uint64, 0),
	}
}

func (c *Contract) Upkeep() SimulatedUpkeep {
	return c.upkeep
}

// CheckUpkeep reports whether an unserved eligibility exists at or before
// the current block. The perform data carries the latest such block.
func (c *Contract) CheckUpkeep(_ context.Context, gas types.GasMeter, _ []byte) (bool, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := gas.Consume(c.upkeep.CheckGas); err != nil {
		return false, nil, err
	}

	block, ok := c.pending(c.backend.BlockNumber())
	if !ok {
		return false, nil, nil
	}

	data, err := performDataArgs.Pack(new(big.Int).SetUint64(block))
	if err != nil {
		return false, nil, err
	}

	return true, data, nil
}

func (c *Contract) PerformUpkeep(_ context.Context, gas types.GasMeter, performData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := gas.Consume(c.upkeep.PerformGas); err != nil {
		return err
	}

	values, err := performDataArgs.UnpackValues(performData)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidPayload, err)
	}

	eligibleBlock, ok := values[0].(*big.Int)
	if !ok || !eligibleBlock.IsUint64() {
		return fmt.Errorf("%w: eligible block", types.ErrInvalidPayload)
	}

	height := c.backend.BlockNumber()

	if _, ok := c.pending(height); !ok {
		return fmt.Errorf("%w at block %d", ErrNotEligible, height)
	}

	if !c.upkeep.AlwaysEligible {
		c.served = sort.Search(len(c.upkeep.EligibleAt), func(i int) bool {
			return c.upkeep.EligibleAt[i] > eligibleBlock.Uint64()
		})
	}

	c.performs = append(c.performs, height)

	return nil
}

// Performs returns the blocks in which the upkeep was successfully performed.
func (c *Contract) Performs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.performs)
}

// Missed returns the scheduled blocks that were superseded or never served
// before height.
func (c *Contract) Missed(height uint64) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	missed := make([]uint64, 0)
	performIdx := 0

	for _, eligible := range c.upkeep.EligibleAt {
		if eligible >= height {
			break
		}

		// an eligibility is served by the first perform at or after it and
		// before the next eligibility
		for performIdx < len(c.performs) && c.performs[performIdx] < eligible {
			performIdx++
		}

		if performIdx == len(c.performs) {
			missed = append(missed, eligible)

			continue
		}

		next := height
		if idx := sort.Search(len(c.upkeep.EligibleAt), func(i int) bool { return c.upkeep.EligibleAt[i] > eligible }); idx < len(c.upkeep.EligibleAt) {
			next = c.upkeep.EligibleAt[idx]
		}

		if c.performs[performIdx] >= next {
			missed = append(missed, eligible)
		}
	}

	return missed
}

func (c *Contract) pending(height uint64) (uint64, bool) {
	if c.upkeep.AlwaysEligible {
		return height, true
	}

	// index of the first scheduled block after height
	idx := sort.Search(len(c.upkeep.EligibleAt), func(i int) bool {
		return c.upkeep.EligibleAt[i] > height
	})

	if idx == 0 || idx-1 < c.served {
		return 0, false
	}

	return c.upkeep.EligibleAt[idx-1], true
}

var _ types.KeeperCompatible = (*Contract)(nil)
