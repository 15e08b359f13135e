package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_FailedUpdateIsDiscarded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, &Account{UserID: 1, Balance: 5}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update(ctx, 1, func(a *Account) error {
		a.Balance = 100
		a.ReferredIDs = append(a.ReferredIDs, 9)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	acc, _ := s.Get(ctx, 1)
	if acc.Balance != 5 || len(acc.ReferredIDs) != 0 {
		t.Fatalf("failed update leaked: %+v", acc)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ref := int64(7)
	_ = s.Create(ctx, &Account{UserID: 1, ReferrerID: &ref})

	acc, _ := s.Get(ctx, 1)
	*acc.ReferrerID = 8
	acc.Balance = 99

	again, _ := s.Get(ctx, 1)
	if *again.ReferrerID != 7 || again.Balance != 0 {
		t.Fatalf("store state aliased by caller: %+v", again)
	}
}

func TestMemoryStore_CreateConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, &Account{UserID: 1})
	if err := s.Create(ctx, &Account{UserID: 1}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}
