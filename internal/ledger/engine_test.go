package ledger

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recordingJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *recordingJournal) Record(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *recordingJournal) byReason(reason string) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

var testPolicy = Policy{
	InitialGrant:   10,
	ReferralReward: 3,
	ChannelReward:  2,
	GenerationCost: 5,
	Mode:           ModeFlatCost,
}

func newTestEngine(t *testing.T, p Policy) (*Engine, *MemoryStore, *recordingJournal) {
	t.Helper()
	store := NewMemoryStore()
	journal := &recordingJournal{}
	e := NewEngine(store, p, journal)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	return e, store, journal
}

func mustCreate(t *testing.T, e *Engine, userID, referrerID int64) *Created {
	t.Helper()
	res, err := e.CreateAccount(context.Background(), userID, referrerID)
	if err != nil {
		t.Fatalf("CreateAccount(%d): %v", userID, err)
	}
	return res
}

func balanceOf(t *testing.T, s *MemoryStore, userID int64) int64 {
	t.Helper()
	acc, err := s.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get(%d): %v", userID, err)
	}
	return acc.Balance
}

// ---------------------------------------------------------------------------
// CreateAccount
// ---------------------------------------------------------------------------

func TestCreateAccount_InitialGrant(t *testing.T) {
	e, s, j := newTestEngine(t, testPolicy)

	res := mustCreate(t, e, 100, 0)
	if res.Account.Balance != 10 {
		t.Fatalf("expected initial balance 10, got %d", res.Account.Balance)
	}
	if res.Referral != ReferralNone {
		t.Fatalf("expected no referral outcome, got %s", res.Referral)
	}
	if got := balanceOf(t, s, 100); got != 10 {
		t.Fatalf("stored balance = %d, want 10", got)
	}
	if n := len(j.byReason(ReasonInitialGrant)); n != 1 {
		t.Fatalf("expected 1 initial grant entry, got %d", n)
	}
}

func TestCreateAccount_ZeroGrantWritesNoEntry(t *testing.T) {
	p := testPolicy
	p.InitialGrant = 0
	e, _, j := newTestEngine(t, p)

	mustCreate(t, e, 100, 0)
	if n := len(j.entries); n != 0 {
		t.Fatalf("expected no journal entries, got %d", n)
	}
}

func TestCreateAccount_AlreadyExists(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	if _, err := e.Credit(context.Background(), 100, 7, ReasonAdminGrant); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	_, err := e.CreateAccount(context.Background(), 100, 0)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if got := balanceOf(t, s, 100); got != 17 {
		t.Fatalf("second create must not touch the account, balance = %d", got)
	}
}

func TestCreateAccount_SelfReferralStoredAsAbsent(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)

	res := mustCreate(t, e, 100, 100)
	if res.Account.ReferrerID != nil {
		t.Fatalf("expected no referrer, got %d", *res.Account.ReferrerID)
	}
	if got := balanceOf(t, s, 100); got != 10 {
		t.Fatalf("self referral must not credit, balance = %d", got)
	}
}

func TestCreateAccount_CreditsReferrer(t *testing.T) {
	e, s, j := newTestEngine(t, testPolicy)
	mustCreate(t, e, 1, 0)

	res := mustCreate(t, e, 2, 1)
	if res.Referral != ReferralCredited {
		t.Fatalf("expected credited, got %s", res.Referral)
	}
	if res.Account.ReferrerID == nil || *res.Account.ReferrerID != 1 {
		t.Fatalf("expected referrer 1, got %v", res.Account.ReferrerID)
	}
	if got := balanceOf(t, s, 1); got != 13 {
		t.Fatalf("referrer balance = %d, want 13", got)
	}
	if got := balanceOf(t, s, 2); got != 10 {
		t.Fatalf("referred balance = %d, want 10", got)
	}
	if n := len(j.byReason(ReasonReferral)); n != 1 {
		t.Fatalf("expected 1 referral entry, got %d", n)
	}
}

func TestCreateAccount_UnknownReferrerStillCreates(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)

	res := mustCreate(t, e, 2, 999)
	if res.Referral != ReferralReferrerNotFound {
		t.Fatalf("expected referrer_not_found, got %s", res.Referral)
	}
	if got := balanceOf(t, s, 2); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}
}

// ---------------------------------------------------------------------------
// Credit / Debit
// ---------------------------------------------------------------------------

func TestCreditDebit_BalanceMatchesSuccessfulMovements(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	want := int64(10)
	for i := 0; i < 500; i++ {
		amount := int64(rng.Intn(9) + 1)
		if rng.Intn(2) == 0 {
			got, err := e.Credit(ctx, 100, amount, ReasonAdminGrant)
			if err != nil {
				t.Fatalf("Credit: %v", err)
			}
			want += amount
			if got != want {
				t.Fatalf("step %d: credit returned %d, want %d", i, got, want)
			}
			continue
		}
		got, err := e.Debit(ctx, 100, amount)
		if errors.Is(err, ErrInsufficient) {
			if amount <= want {
				t.Fatalf("step %d: debit %d rejected with balance %d", i, amount, want)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Debit: %v", err)
		}
		want -= amount
		if got != want || got < 0 {
			t.Fatalf("step %d: debit returned %d, want %d", i, got, want)
		}
	}
	if got := balanceOf(t, s, 100); got != want {
		t.Fatalf("final balance = %d, want %d", got, want)
	}
}

func TestDebit_InsufficientLeavesAccountUnchanged(t *testing.T) {
	e, s, j := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	_, err := e.Debit(context.Background(), 100, 11)
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.Current != 10 || insufficient.Required != 11 {
		t.Fatalf("unexpected shortfall %+v", insufficient)
	}

	acc, _ := s.Get(context.Background(), 100)
	if acc.Balance != 10 || acc.TotalGenerations != 0 {
		t.Fatalf("denied debit mutated account: %+v", acc)
	}
	if n := len(j.byReason(ReasonGeneration)); n != 0 {
		t.Fatalf("denied debit was journaled")
	}
}

func TestDebit_IncrementsTotalGenerations(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	for i := 0; i < 2; i++ {
		if _, err := e.Debit(context.Background(), 100, 5); err != nil {
			t.Fatalf("Debit #%d: %v", i+1, err)
		}
	}
	acc, _ := s.Get(context.Background(), 100)
	if acc.TotalGenerations != 2 || acc.Balance != 0 {
		t.Fatalf("unexpected account after two debits: %+v", acc)
	}
}

func TestDebit_ConcurrentOnlyCoveredDebitsSucceed(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Debit(context.Background(), 100, 5); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 2 {
		t.Fatalf("expected exactly 2 successful debits, got %d", succeeded)
	}
	if got := balanceOf(t, s, 100); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestOperations_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t, testPolicy)
	ctx := context.Background()

	if _, err := e.Credit(ctx, 1, 1, ReasonAdminGrant); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Credit: expected ErrAccountNotFound, got %v", err)
	}
	if _, err := e.Debit(ctx, 1, 1); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Debit: expected ErrAccountNotFound, got %v", err)
	}
	if err := e.SetBalance(ctx, 1, 1, ReasonAdminSet); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SetBalance: expected ErrAccountNotFound, got %v", err)
	}
	if _, err := e.ClaimChannelBonus(ctx, 1, 2); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("ClaimChannelBonus: expected ErrAccountNotFound, got %v", err)
	}
	if _, err := e.Account(ctx, 1); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Account: expected ErrAccountNotFound, got %v", err)
	}
}

func TestOperations_InvalidAmount(t *testing.T) {
	e, _, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := e.Credit(ctx, 100, amount, ReasonAdminGrant); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := e.Debit(ctx, 100, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Debit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := e.ClaimChannelBonus(ctx, 100, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ClaimChannelBonus(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if err := e.SetBalance(ctx, 100, -1, ReasonAdminSet); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("SetBalance(-1): expected ErrInvalidAmount, got %v", err)
	}
}

func TestCredits_RejectOverflow(t *testing.T) {
	e, s, j := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	mustCreate(t, e, 200, 0)
	ctx := context.Background()

	if _, err := e.Credit(ctx, 100, math.MaxInt64, ReasonAdminGrant); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("Credit: expected ErrBalanceOverflow, got %v", err)
	}
	if got := balanceOf(t, s, 100); got != 10 {
		t.Fatalf("balance after rejected credit = %d, want 10", got)
	}
	if n := len(j.byReason(ReasonAdminGrant)); n != 0 {
		t.Fatalf("rejected credit was journaled %d times", n)
	}

	// exactly up to the limit is fine, one more is not
	if _, err := e.Credit(ctx, 100, math.MaxInt64-10, ReasonAdminGrant); err != nil {
		t.Fatalf("Credit to MaxInt64: %v", err)
	}
	if _, err := e.ClaimChannelBonus(ctx, 100, 1); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("ClaimChannelBonus: expected ErrBalanceOverflow, got %v", err)
	}
	acc, _ := s.Get(ctx, 100)
	if acc.ChannelBonusClaimed || acc.Balance != math.MaxInt64 {
		t.Fatalf("rejected bonus changed the account: %+v", acc)
	}

	// a referrer at the limit keeps its list unchanged
	outcome, err := e.Attribute(ctx, 100, 200)
	if !errors.Is(err, ErrBalanceOverflow) || outcome == ReferralCredited {
		t.Fatalf("Attribute: outcome %s err %v", outcome, err)
	}
	acc, _ = s.Get(ctx, 100)
	if len(acc.ReferredIDs) != 0 || acc.Balance < 0 {
		t.Fatalf("rejected referral changed the account: %+v", acc)
	}
}

// ---------------------------------------------------------------------------
// SetBalance / ClaimChannelBonus / ClaimFreeTier
// ---------------------------------------------------------------------------

func TestSetBalance_Overwrites(t *testing.T) {
	e, s, j := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	if err := e.SetBalance(context.Background(), 100, 1000, ReasonAdminSet); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if got := balanceOf(t, s, 100); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
	entries := j.byReason(ReasonAdminSet)
	if len(entries) != 1 || entries[0].Delta != 990 {
		t.Fatalf("expected one +990 entry, got %+v", entries)
	}
}

func TestClaimChannelBonus_OnlyOnce(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	ctx := context.Background()

	got, err := e.ClaimChannelBonus(ctx, 100, 2)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if got != 12 {
		t.Fatalf("balance after claim = %d, want 12", got)
	}

	if _, err := e.ClaimChannelBonus(ctx, 100, 2); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}
	if got := balanceOf(t, s, 100); got != 12 {
		t.Fatalf("balance after second claim = %d, want 12", got)
	}
}

func TestClaimChannelBonus_ConcurrentClaimsCreditOnce(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.ClaimChannelBonus(context.Background(), 100, 2)
		}()
	}
	wg.Wait()

	if got := balanceOf(t, s, 100); got != 12 {
		t.Fatalf("balance = %d, want 12", got)
	}
}

func TestClaimFreeTier(t *testing.T) {
	e, _, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	ctx := context.Background()

	acc, claimed, err := e.ClaimFreeTier(ctx, 100)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	if !acc.FreeTierClaimed || acc.TotalGenerations != 1 || acc.Balance != 10 {
		t.Fatalf("unexpected account after free tier: %+v", acc)
	}

	_, claimed, err = e.ClaimFreeTier(ctx, 100)
	if err != nil || claimed {
		t.Fatalf("second claim: claimed=%v err=%v", claimed, err)
	}

	if _, _, err := e.ClaimFreeTier(ctx, 404); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown user: expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccount_TouchesLastActive(t *testing.T) {
	e, _, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)

	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return later }

	acc, err := e.Account(context.Background(), 100)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if !acc.LastActiveAt.Equal(later) {
		t.Fatalf("last active = %s, want %s", acc.LastActiveAt, later)
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := testPolicy.Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
	bad := testPolicy
	bad.GenerationCost = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero cost accepted")
	}
	bad = testPolicy
	bad.Mode = "pay-what-you-want"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestPeek_LeavesAccountUntouched(t *testing.T) {
	e, s, _ := newTestEngine(t, testPolicy)
	mustCreate(t, e, 100, 0)
	created, _ := s.Get(context.Background(), 100)

	e.now = func() time.Time { return created.LastActiveAt.Add(time.Hour) }
	acc, err := e.Peek(context.Background(), 100)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if acc.Balance != 10 {
		t.Fatalf("Peek balance = %d, want 10", acc.Balance)
	}
	after, _ := s.Get(context.Background(), 100)
	if !after.LastActiveAt.Equal(created.LastActiveAt) {
		t.Fatalf("Peek touched last_active: %s -> %s", created.LastActiveAt, after.LastActiveAt)
	}
	if _, err := e.Peek(context.Background(), 999); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("Peek unknown: expected ErrAccountNotFound, got %v", err)
	}
}
