package types

import "fmt"

var (
	ErrNotAContract        = fmt.Errorf("not a contract")
	ErrGasOutOfRange       = fmt.Errorf("execute gas out of range")
	ErrUnknownUpkeep       = fmt.Errorf("unknown upkeep")
	ErrNotExecutable       = fmt.Errorf("upkeep not executable")
	ErrNotAKeeper          = fmt.Errorf("only active keepers")
	ErrMustTakeTurns       = fmt.Errorf("keepers must take turns")
	ErrInsufficientGas     = fmt.Errorf("insufficient gas")
	ErrInsufficientBalance = fmt.Errorf("insufficient balance")
	ErrUnauthorized        = fmt.Errorf("unauthorized")
	ErrAlreadyCanceled     = fmt.Errorf("upkeep already canceled")
	ErrNotCanceled         = fmt.Errorf("upkeep not canceled")
	ErrSelfTransfer        = fmt.Errorf("cannot transfer to self")
	ErrPayeeMismatch       = fmt.Errorf("cannot change payee")
	ErrHashMismatch        = fmt.Errorf("hash and payload do not match")
	ErrRequestNotFound     = fmt.Errorf("request not found")
	ErrAmountMismatch      = fmt.Errorf("amount mismatch")

	ErrOnlySimulatedBackend = fmt.Errorf("only for simulated backend")
	ErrOnlyToken            = fmt.Errorf("only callable through token")
	ErrInvalidRecipient     = fmt.Errorf("invalid recipient")
	ErrInvalidAmount        = fmt.Errorf("invalid amount")
	ErrInvalidKeeperList    = fmt.Errorf("invalid keeper list")
	ErrInvalidConfig        = fmt.Errorf("invalid config")
	ErrPaused               = fmt.Errorf("contract paused")
	ErrInsufficientPayment  = fmt.Errorf("insufficient payment")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrOutOfGas             = fmt.Errorf("out of gas")
	ErrTransferFailed       = fmt.Errorf("token transfer failed")
	ErrReentrant            = fmt.Errorf("reentrant call")
)
