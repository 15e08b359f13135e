package ledger

import "context"

// Store is the durable account backend.
//
// Update must run fn against the current account under an exclusive lock (or
// an equivalent transaction) and persist the result only when fn returns nil.
// Get is a lock-free read with no side effects; reads that should mark the
// user active go through Update instead. Get returns ErrAccountNotFound for
// unknown users, Create returns ErrAlreadyExists for known ones.
type Store interface {
	Get(ctx context.Context, userID int64) (*Account, error)
	Create(ctx context.Context, acc *Account) error
	Update(ctx context.Context, userID int64, fn func(acc *Account) error) (*Account, error)
}

// Entry is one balance movement, written after the movement commits.
type Entry struct {
	UserID       int64
	Delta        int64
	Reason       string
	BalanceAfter int64
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
}

const (
	ReasonInitialGrant = "initial_grant"
	ReasonReferral     = "referral_reward"
	ReasonChannelBonus = "channel_join_bonus"
	ReasonAdminGrant   = "admin_grant"
	ReasonAdminSet     = "admin_set_balance"
	ReasonGeneration   = "generation"
	ReasonRefund       = "generation_failed_refund"
)
