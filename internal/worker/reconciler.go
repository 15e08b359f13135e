package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/models"
)

type PendingStore interface {
	StalePending(ctx context.Context, before time.Time, limit int) ([]models.GenerationRecord, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

const batchSize = 100

// Reconciler refunds generations that were charged but never issued, e.g.
// because the process died while the provider call was in flight.
type Reconciler struct {
	Pending     PendingStore
	Ledger      Crediter
	Notifier    Notifier
	RefundAfter time.Duration

	now func() time.Time
}

func NewReconciler(pending PendingStore, credits Crediter, notifier Notifier, refundAfter time.Duration) *Reconciler {
	return &Reconciler{
		Pending:     pending,
		Ledger:      credits,
		Notifier:    notifier,
		RefundAfter: refundAfter,
		now:         time.Now,
	}
}

// Start schedules RunOnce every interval. The caller shuts the scheduler down.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			r.RunOnce(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reconciler: %w", err)
	}
	sched.Start()
	log.Printf("Refund reconciler started (every %s, refund after %s)", interval, r.RefundAfter)
	return sched, nil
}

// RunOnce refunds one batch of stale pending generations and returns how many
// were paid back.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	stale, err := r.Pending.StalePending(ctx, r.now().Add(-r.RefundAfter), batchSize)
	if err != nil {
		log.Printf("Error querying stale generations: %v", err)
		return 0
	}

	refunded := 0
	for _, rec := range stale {
		won, err := r.Pending.MarkRefunded(ctx, rec.ID)
		if err != nil {
			log.Printf("Failed to mark generation %s refunded: %v", rec.ID, err)
			continue
		}
		if !won || rec.Charged <= 0 {
			continue
		}

		balance, err := r.Ledger.Credit(ctx, rec.UserID, rec.Charged, ledger.ReasonRefund)
		if err != nil {
			log.Printf("REFUND-FAILED: generation %s user %d amount %d: %v", rec.ID, rec.UserID, rec.Charged, err)
			continue
		}
		refunded++
		log.Printf("refund: generation %s user %d +%d (balance %d)", rec.ID, rec.UserID, rec.Charged, balance)

		if r.Notifier != nil {
			msg := fmt.Sprintf("⚠️ Your %s config could not be delivered. %d coins were returned to your balance.", rec.Kind, rec.Charged)
			if err := r.Notifier.Notify(ctx, rec.UserID, msg); err != nil {
				log.Printf("Failed to send refund notification to %d: %v", rec.UserID, err)
			}
		}
	}
	return refunded
}
