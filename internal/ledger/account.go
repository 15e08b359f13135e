package ledger

import (
	"math"
	"time"
)

// Account is the per-user coin record. Only Engine operations mutate it.
type Account struct {
	UserID              int64
	Balance             int64
	ReferrerID          *int64
	ReferredIDs         []int64
	ChannelBonusClaimed bool
	FreeTierClaimed     bool
	TotalGenerations    int64
	CreatedAt           time.Time
	LastActiveAt        time.Time
}

// HasReferred reports whether id was already credited to this account as a referral.
func (a *Account) HasReferred(id int64) bool {
	for _, r := range a.ReferredIDs {
		if r == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out accounts without aliasing.
func (a *Account) Clone() *Account {
	cp := *a
	if a.ReferrerID != nil {
		ref := *a.ReferrerID
		cp.ReferrerID = &ref
	}
	cp.ReferredIDs = append([]int64(nil), a.ReferredIDs...)
	return &cp
}

// addBalance credits amount to a, refusing to wrap past the int64 range.
func addBalance(a *Account, amount int64) error {
	if amount > math.MaxInt64-a.Balance {
		return ErrBalanceOverflow
	}
	a.Balance += amount
	return nil
}
