package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
)

const (
	// DefaultNonceTTL is how long an issued challenge stays redeemable
	DefaultNonceTTL = 2 * time.Minute

	// NonceSize is the length of generated nonces in bytes
	NonceSize = 32
)

type entry struct {
	nonce     []byte
	expiresAt time.Time
	consumed  bool
}

// MemoryStore is an in-memory implementation of the NonceStore interface.
// It does not scale past a single instance.
type MemoryStore struct {
	entries map[core.UserID]entry
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store and starts a sweeper that
// evicts expired entries every sweepInterval until ctx is done.
// A non-positive sweepInterval disables the sweeper.
func NewMemoryStore(ctx context.Context, ttl, sweepInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}

	s := &MemoryStore{
		entries: make(map[core.UserID]entry),
		ttl:     ttl,
		now:     time.Now,
	}

	if sweepInterval > 0 {
		go s.sweepLoop(ctx, sweepInterval)
	}

	return s
}

var _ ports.NonceStore = (*MemoryStore)(nil)

// Issue stores a fresh nonce for the user, replacing any previous challenge
func (s *MemoryStore) Issue(_ context.Context, userID core.UserID) ([]byte, time.Time, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	s.entries[userID] = entry{
		nonce:     nonce,
		expiresAt: expiresAt,
	}

	return bytes.Clone(nonce), expiresAt, nil
}

// Peek returns the pending nonce for the user, evicting it if expired
func (s *MemoryStore) Peek(_ context.Context, userID core.UserID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending(userID)
	if !ok {
		return nil, core.ErrChallengeNotFound
	}

	return bytes.Clone(e.nonce), nil
}

// Redeem marks the challenge consumed if it still holds nonce
func (s *MemoryStore) Redeem(_ context.Context, userID core.UserID, nonce []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending(userID)
	if !ok || !bytes.Equal(e.nonce, nonce) {
		return false, nil
	}

	s.entries[userID] = entry{expiresAt: e.expiresAt, consumed: true}
	return true, nil
}

// Consume invalidates the user's challenge. Calling it again is a no-op.
func (s *MemoryStore) Consume(_ context.Context, userID core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending(userID)
	if !ok {
		return nil
	}

	s.entries[userID] = entry{expiresAt: e.expiresAt, consumed: true}
	return nil
}

// State reports the tagged challenge state for the user
func (s *MemoryStore) State(_ context.Context, userID core.UserID) (core.ChallengeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	switch {
	case !ok || s.expired(e):
		delete(s.entries, userID)
		return core.ChallengeState{Status: core.ChallengeAbsent}, nil
	case e.consumed:
		return core.ChallengeState{Status: core.ChallengeConsumed}, nil
	default:
		return core.ChallengeState{
			Status:    core.ChallengePending,
			Nonce:     bytes.Clone(e.nonce),
			ExpiresAt: e.expiresAt,
		}, nil
	}
}

// Len returns the number of tracked entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Clear removes all data from the store
// This is useful for testing to reset the store between tests
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[core.UserID]entry)
}

// Sweep evicts every expired entry, tombstones included
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			evicted++
		}
	}

	return evicted
}

// pending returns the unconsumed, unexpired entry for userID.
// Expired entries are evicted on the way. Callers hold s.mu.
func (s *MemoryStore) pending(userID core.UserID) (entry, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return entry{}, false
	}

	if s.expired(e) {
		delete(s.entries, userID)
		return entry{}, false
	}

	if e.consumed {
		return entry{}, false
	}

	return e, true
}

func (s *MemoryStore) expired(e entry) bool {
	return s.now().After(e.expiresAt)
}

func (s *MemoryStore) sweepLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

func generateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
