package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAlreadyExists   = errors.New("account already exists")
	ErrAlreadyClaimed  = errors.New("channel bonus already claimed")
	ErrAlreadyReferred = errors.New("user already referred")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInsufficient    = errors.New("insufficient funds")
	ErrBalanceOverflow = errors.New("balance would overflow")
)

// InsufficientFundsError carries the numbers needed for a shortfall message.
// errors.Is(err, ErrInsufficient) matches it.
type InsufficientFundsError struct {
	Current  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %d, need %d", e.Current, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficient
}
