package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Engine owns every rule that moves a balance. Each operation is a single
// Store.Update, so it is atomic per account.
type Engine struct {
	store   Store
	journal Journal
	policy  Policy
	now     func() time.Time
}

// NewEngine builds an engine. journal may be nil.
func NewEngine(store Store, policy Policy, journal Journal) *Engine {
	return &Engine{
		store:   store,
		journal: journal,
		policy:  policy,
		now:     time.Now,
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Created is the result of a successful CreateAccount.
type Created struct {
	Account  *Account
	Referral ReferralOutcome
}

// CreateAccount registers userID with the initial grant. referrerID is zero
// when the user arrived without a referral; a self-referral is dropped.
// Attribution problems never fail the creation.
func (e *Engine) CreateAccount(ctx context.Context, userID, referrerID int64) (*Created, error) {
	now := e.now()
	acc := &Account{
		UserID:       userID,
		Balance:      e.policy.InitialGrant,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if referrerID > 0 && referrerID != userID {
		ref := referrerID
		acc.ReferrerID = &ref
	}

	if err := e.store.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create account %d: %w", userID, err)
	}
	log.Printf("New account %d (balance %d)", userID, acc.Balance)
	if acc.Balance > 0 {
		e.record(ctx, Entry{UserID: userID, Delta: acc.Balance, Reason: ReasonInitialGrant, BalanceAfter: acc.Balance})
	}

	res := &Created{Account: acc, Referral: ReferralNone}
	if acc.ReferrerID == nil {
		return res, nil
	}
	outcome, err := e.Attribute(ctx, *acc.ReferrerID, userID)
	if err != nil {
		log.Printf("Referral attribution %d -> %d failed: %v", *acc.ReferrerID, userID, err)
		return res, nil
	}
	res.Referral = outcome
	return res, nil
}

// Peek reads an account without touching it. It takes no lock, so the result
// may already be stale when it returns.
func (e *Engine) Peek(ctx context.Context, userID int64) (*Account, error) {
	acc, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, e.wrap("peek", userID, err)
	}
	return acc, nil
}

// Account loads an account for display and marks the user active.
func (e *Engine) Account(ctx context.Context, userID int64) (*Account, error) {
	now := e.now()
	acc, err := e.store.Update(ctx, userID, func(a *Account) error {
		a.LastActiveAt = now
		return nil
	})
	if err != nil {
		return nil, e.wrap("load", userID, err)
	}
	return acc, nil
}

// Credit adds a positive amount and returns the new balance.
func (e *Engine) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	now := e.now()
	acc, err := e.store.Update(ctx, userID, func(a *Account) error {
		if err := addBalance(a, amount); err != nil {
			return err
		}
		a.LastActiveAt = now
		return nil
	})
	if err != nil {
		return 0, e.wrap("credit", userID, err)
	}
	e.record(ctx, Entry{UserID: userID, Delta: amount, Reason: reason, BalanceAfter: acc.Balance})
	return acc.Balance, nil
}

// Debit charges one generation. It fails with *InsufficientFundsError when
// the balance cannot cover amount, leaving the account untouched.
func (e *Engine) Debit(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	now := e.now()
	acc, err := e.store.Update(ctx, userID, func(a *Account) error {
		if a.Balance < amount {
			return &InsufficientFundsError{Current: a.Balance, Required: amount}
		}
		a.Balance -= amount
		a.TotalGenerations++
		a.LastActiveAt = now
		return nil
	})
	if err != nil {
		return 0, e.wrap("debit", userID, err)
	}
	e.record(ctx, Entry{UserID: userID, Delta: -amount, Reason: ReasonGeneration, BalanceAfter: acc.Balance})
	return acc.Balance, nil
}

// SetBalance overwrites the balance. Admin only.
func (e *Engine) SetBalance(ctx context.Context, userID, amount int64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	now := e.now()
	var delta int64
	acc, err := e.store.Update(ctx, userID, func(a *Account) error {
		delta = amount - a.Balance
		a.Balance = amount
		a.LastActiveAt = now
		return nil
	})
	if err != nil {
		return e.wrap("set balance", userID, err)
	}
	log.Printf("Balance of %d set to %d (%s)", userID, amount, reason)
	if delta != 0 {
		e.record(ctx, Entry{UserID: userID, Delta: delta, Reason: reason, BalanceAfter: acc.Balance})
	}
	return nil
}

// ClaimChannelBonus flips the channel flag and credits amount in one update.
// A second claim returns ErrAlreadyClaimed and credits nothing.
func (e *Engine) ClaimChannelBonus(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	now := e.now()
	acc, err := e.store.Update(ctx, userID, func(a *Account) error {
		if a.ChannelBonusClaimed {
			return ErrAlreadyClaimed
		}
		if err := addBalance(a, amount); err != nil {
			return err
		}
		a.ChannelBonusClaimed = true
		a.LastActiveAt = now
		return nil
	})
	if err != nil {
		return 0, e.wrap("claim channel bonus", userID, err)
	}
	e.record(ctx, Entry{UserID: userID, Delta: amount, Reason: ReasonChannelBonus, BalanceAfter: acc.Balance})
	return acc.Balance, nil
}

var errFreeTierUsed = errors.New("free tier already used")

// ClaimFreeTier marks the free generation as used. claimed is false, with a
// nil error, when it had already been used.
func (e *Engine) ClaimFreeTier(ctx context.Context, userID int64) (acc *Account, claimed bool, err error) {
	now := e.now()
	acc, err = e.store.Update(ctx, userID, func(a *Account) error {
		if a.FreeTierClaimed {
			return errFreeTierUsed
		}
		a.FreeTierClaimed = true
		a.TotalGenerations++
		a.LastActiveAt = now
		return nil
	})
	if errors.Is(err, errFreeTierUsed) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, e.wrap("claim free tier", userID, err)
	}
	return acc, true, nil
}

// wrap keeps the expected outcomes as-is and adds context to infrastructure errors.
func (e *Engine) wrap(op string, userID int64, err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrInsufficient),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrAlreadyReferred),
		errors.Is(err, ErrBalanceOverflow):
		return err
	}
	return fmt.Errorf("%s account %d: %w", op, userID, err)
}

func (e *Engine) record(ctx context.Context, entry Entry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		log.Printf("Failed to journal %s for %d (%+d): %v", entry.Reason, entry.UserID, entry.Delta, err)
	}
}
