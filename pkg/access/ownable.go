package access

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/pkg/util"
)

type OwnershipTransferRequested struct {
	From common.Address
	To   common.Address
}

func (OwnershipTransferRequested) EventName() string { return "OwnershipTransferRequested" }

type OwnershipTransferred struct {
	From common.Address
	To   common.Address
}

func (OwnershipTransferred) EventName() string { return "OwnershipTransferred" }

// Ownable holds a single owner that can hand off ownership in two steps. It
// is not safe for concurrent use; the embedding contract serializes access.
type Ownable struct {
	owner   common.Address
	pending common.Address
}

func NewOwnable(owner common.Address) Ownable {
	return Ownable{owner: owner}
}

func (o *Ownable) Owner() common.Address {
	return o.owner
}

func (o *Ownable) IsOwner(caller common.Address) bool {
	return caller == o.owner
}

// OnlyOwner returns ErrUnauthorized for any caller other than the owner.
func (o *Ownable) OnlyOwner(caller common.Address) error {
	if caller != o.owner {
		return fmt.Errorf("%w: only callable by owner", types.ErrUnauthorized)
	}

	return nil
}

// TransferOwnership proposes a new owner.
func (o *Ownable) TransferOwnership(j *util.Journal, caller, to common.Address) error {
	if err := o.OnlyOwner(caller); err != nil {
		return err
	}

	if to == caller {
		return fmt.Errorf("%w: ownership", types.ErrSelfTransfer)
	}

	util.Set(j, &o.pending, to)
	j.Emit(OwnershipTransferRequested{From: o.owner, To: to})

	return nil
}

// AcceptOwnership completes a transfer started by TransferOwnership.
func (o *Ownable) AcceptOwnership(j *util.Journal, caller common.Address) error {
	if o.pending == (common.Address{}) || caller != o.pending {
		return fmt.Errorf("%w: must be proposed owner", types.ErrUnauthorized)
	}

	previous := o.owner

	util.Set(j, &o.owner, caller)
	util.Set(j, &o.pending, common.Address{})
	j.Emit(OwnershipTransferred{From: previous, To: caller})

	return nil
}
