package ledger

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps accounts in process memory. Every call holds one mutex,
// so updates for the same user are trivially serialized. It mirrors the
// Postgres store's rule that a user can be referred only once.
type MemoryStore struct {
	mu         sync.Mutex
	accounts   map[int64]*Account
	referredBy map[int64]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[int64]*Account),
		referredBy: make(map[int64]int64),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, userID int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.UserID]; ok {
		return ErrAlreadyExists
	}
	s.accounts[acc.UserID] = acc.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, userID int64, fn func(acc *Account) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if len(next.ReferredIDs) < len(cur.ReferredIDs) {
		return nil, errors.New("referred ids are append-only")
	}
	for _, id := range next.ReferredIDs[len(cur.ReferredIDs):] {
		if owner, taken := s.referredBy[id]; taken && owner != userID {
			return nil, ErrAlreadyReferred
		}
	}
	for _, id := range next.ReferredIDs[len(cur.ReferredIDs):] {
		s.referredBy[id] = userID
	}
	s.accounts[userID] = next
	return next.Clone(), nil
}
