package ledger

import (
	"context"
	"errors"
	"log"
)

type ReferralOutcome int

const (
	ReferralNone ReferralOutcome = iota
	ReferralCredited
	ReferralSelf
	ReferralAlreadyReferred
	ReferralReferrerNotFound
)

func (o ReferralOutcome) String() string {
	switch o {
	case ReferralCredited:
		return "credited"
	case ReferralSelf:
		return "self_referral"
	case ReferralAlreadyReferred:
		return "already_referred"
	case ReferralReferrerNotFound:
		return "referrer_not_found"
	}
	return "none"
}

// Attribute credits referrerID with the referral reward for bringing in
// referredID. The referred id is appended and the reward added in the same
// update, so a retried delivery cannot pay twice.
func (e *Engine) Attribute(ctx context.Context, referrerID, referredID int64) (ReferralOutcome, error) {
	if referrerID == referredID {
		return ReferralSelf, nil
	}
	reward := e.policy.ReferralReward
	now := e.now()
	acc, err := e.store.Update(ctx, referrerID, func(a *Account) error {
		if a.HasReferred(referredID) {
			return ErrAlreadyReferred
		}
		if err := addBalance(a, reward); err != nil {
			return err
		}
		a.ReferredIDs = append(a.ReferredIDs, referredID)
		a.LastActiveAt = now
		return nil
	})
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return ReferralReferrerNotFound, nil
	case errors.Is(err, ErrAlreadyReferred):
		return ReferralAlreadyReferred, nil
	case err != nil:
		return ReferralNone, e.wrap("attribute referral for", referrerID, err)
	}

	log.Printf("Referral added: %d -> %d (+%d)", referrerID, referredID, reward)
	if reward > 0 {
		e.record(ctx, Entry{UserID: referrerID, Delta: reward, Reason: ReasonReferral, BalanceAfter: acc.Balance})
	}
	return ReferralCredited, nil
}
