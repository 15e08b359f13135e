// Package issuer runs one paid credential request end to end: charge through
// the gate, record it, call the provider, and refund when the provider fails.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"ssh-v2ray-bot/internal/gate"
	"ssh-v2ray-bot/internal/provider"
)

var ErrGenerationFailed = errors.New("credential generation failed")

type Generator interface {
	Generate(ctx context.Context, kind provider.Kind, userID int64) (*provider.Credential, error)
}

type History interface {
	CreatePending(ctx context.Context, userID int64, kind string, charged int64) (uuid.UUID, error)
	MarkIssued(ctx context.Context, id uuid.UUID, config string) error
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
}

type Issuer struct {
	gate    *gate.Gate
	gen     Generator
	history History
}

func New(g *gate.Gate, gen Generator, history History) *Issuer {
	return &Issuer{gate: g, gen: gen, history: history}
}

type Result struct {
	Decision   gate.Decision
	Credential *provider.Credential
	Refunded   bool
}

// Issue returns a denied Result with a nil error when the gate says no. A
// provider failure returns ErrGenerationFailed after the charge is refunded.
func (i *Issuer) Issue(ctx context.Context, userID int64, isAdmin bool, kind provider.Kind) (*Result, error) {
	d, err := i.gate.Evaluate(ctx, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	res := &Result{Decision: d}
	if !d.Allowed {
		return res, nil
	}

	// Compensation must survive the caller's deadline.
	bg := context.WithoutCancel(ctx)

	id, err := i.history.CreatePending(ctx, userID, string(kind), d.Amount)
	if err != nil {
		log.Printf("Failed to record %s generation for %d: %v", kind, userID, err)
		res.Refunded = i.gate.Refund(bg, userID, d) == nil && d.Charge == gate.Debited
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	cred, err := i.gen.Generate(ctx, kind, userID)
	if err != nil {
		log.Printf("Generation of %s for %d failed: %v", kind, userID, err)
		res.Refunded = i.compensate(bg, id, userID, d)
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if err := i.history.MarkIssued(bg, id, cred.Text()); err != nil {
		log.Printf("Failed to mark generation %s issued: %v", id, err)
	}
	res.Credential = cred
	return res, nil
}

// compensate refunds only after winning the pending->refunded transition, so
// the reconciler can never pay the same record back a second time.
func (i *Issuer) compensate(ctx context.Context, id uuid.UUID, userID int64, d gate.Decision) bool {
	won, err := i.history.MarkRefunded(ctx, id)
	if err != nil {
		log.Printf("Failed to mark generation %s refunded, leaving it to the reconciler: %v", id, err)
		return false
	}
	if !won || d.Charge != gate.Debited {
		return false
	}
	return i.gate.Refund(ctx, userID, d) == nil
}
