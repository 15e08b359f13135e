// Package gate decides whether a credential may be generated and charges for it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ssh-v2ray-bot/internal/ledger"
)

type ChargeMethod int

const (
	AdminBypass ChargeMethod = iota + 1
	FreeTierUsed
	Debited
)

func (c ChargeMethod) String() string {
	switch c {
	case AdminBypass:
		return "admin_bypass"
	case FreeTierUsed:
		return "free_tier"
	case Debited:
		return "debited"
	}
	return "unknown"
}

type DenyReason int

const (
	InsufficientBalance DenyReason = iota + 1
	AccountNotFound
)

func (r DenyReason) String() string {
	switch r {
	case InsufficientBalance:
		return "insufficient_balance"
	case AccountNotFound:
		return "account_not_found"
	}
	return "unknown"
}

// Decision is the verdict of Evaluate. When Allowed is false only Reason
// (and Current/Required for InsufficientBalance) are meaningful.
type Decision struct {
	Allowed      bool
	Charge       ChargeMethod
	Amount       int64
	BalanceAfter int64

	Reason   DenyReason
	Current  int64
	Required int64
}

type Gate struct {
	engine *ledger.Engine
	policy ledger.Policy
}

func New(engine *ledger.Engine) *Gate {
	return &Gate{engine: engine, policy: engine.Policy()}
}

// Evaluate commits the charge for one generation. It must run before the
// credential is produced; if production fails afterwards, call Refund.
func (g *Gate) Evaluate(ctx context.Context, userID int64, isAdmin bool) (Decision, error) {
	if isAdmin {
		var balance int64
		acc, err := g.engine.Peek(ctx, userID)
		switch {
		case err == nil:
			balance = acc.Balance
		case errors.Is(err, ledger.ErrAccountNotFound):
		default:
			return Decision{}, err
		}
		return Decision{Allowed: true, Charge: AdminBypass, BalanceAfter: balance}, nil
	}

	if g.policy.Mode == ledger.ModeFreeTier {
		acc, claimed, err := g.engine.ClaimFreeTier(ctx, userID)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return Decision{Reason: AccountNotFound}, nil
		}
		if err != nil {
			return Decision{}, err
		}
		if claimed {
			return Decision{Allowed: true, Charge: FreeTierUsed, BalanceAfter: acc.Balance}, nil
		}
	}

	cost := g.policy.GenerationCost
	balance, err := g.engine.Debit(ctx, userID, cost)
	var insufficient *ledger.InsufficientFundsError
	switch {
	case err == nil:
		return Decision{Allowed: true, Charge: Debited, Amount: cost, BalanceAfter: balance}, nil
	case errors.As(err, &insufficient):
		return Decision{Reason: InsufficientBalance, Current: insufficient.Current, Required: insufficient.Required}, nil
	case errors.Is(err, ledger.ErrAccountNotFound):
		return Decision{Reason: AccountNotFound}, nil
	}
	return Decision{}, err
}

// Refund gives back what an allowed decision debited. Decisions that charged
// nothing are a no-op.
func (g *Gate) Refund(ctx context.Context, userID int64, d Decision) error {
	if !d.Allowed || d.Charge != Debited || d.Amount <= 0 {
		return nil
	}
	balance, err := g.engine.Credit(ctx, userID, d.Amount, ledger.ReasonRefund)
	if err != nil {
		log.Printf("REFUND-FAILED: user %d amount %d: %v", userID, d.Amount, err)
		return fmt.Errorf("refund %d to %d: %w", d.Amount, userID, err)
	}
	log.Printf("refund: user %d +%d (balance %d)", userID, d.Amount, balance)
	return nil
}
