package store

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runNonceStoreSuite exercises behaviour every NonceStore backend must share
func runNonceStoreSuite(t *testing.T, newStore func(t *testing.T) ports.NonceStore) {
	t.Run("issue then peek", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		nonce, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)
		assert.Len(t, nonce, NonceSize)

		got, err := s.Peek(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, nonce, got)

		// Peek does not consume
		got, err = s.Peek(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, nonce, got)
	})

	t.Run("peek without challenge", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Peek(t.Context(), core.DeriveUserID(t.Name()))
		assert.ErrorIs(t, err, core.ErrChallengeNotFound)
	})

	t.Run("reissue replaces previous nonce", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		first, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)
		second, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		got, err := s.Peek(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, second, got)

		ok, err := s.Redeem(t.Context(), id, first)
		require.NoError(t, err)
		assert.False(t, ok, "stale nonce must not redeem")
	})

	t.Run("redeem is single use", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		nonce, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)

		ok, err := s.Redeem(t.Context(), id, nonce)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Redeem(t.Context(), id, nonce)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Peek(t.Context(), id)
		assert.ErrorIs(t, err, core.ErrChallengeNotFound)

		state, err := s.State(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, core.ChallengeConsumed, state.Status)
	})

	t.Run("consume is idempotent", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		require.NoError(t, s.Consume(t.Context(), id), "consume without challenge")

		nonce, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)

		require.NoError(t, s.Consume(t.Context(), id))
		require.NoError(t, s.Consume(t.Context(), id))

		_, err = s.Peek(t.Context(), id)
		assert.ErrorIs(t, err, core.ErrChallengeNotFound)

		ok, err := s.Redeem(t.Context(), id, nonce)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("state transitions", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		state, err := s.State(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, core.ChallengeAbsent, state.Status)

		nonce, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)

		state, err = s.State(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, core.ChallengePending, state.Status)
		assert.Equal(t, nonce, state.Nonce)
		assert.False(t, state.ExpiresAt.IsZero())

		ok, err := s.Redeem(t.Context(), id, nonce)
		require.NoError(t, err)
		require.True(t, ok)

		state, err = s.State(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, core.ChallengeConsumed, state.Status)
		assert.Nil(t, state.Nonce)

		// A new challenge replaces the tombstone
		_, _, err = s.Issue(t.Context(), id)
		require.NoError(t, err)
		state, err = s.State(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, core.ChallengePending, state.Status)
	})

	t.Run("concurrent redeem succeeds once", func(t *testing.T) {
		s := newStore(t)
		id := core.DeriveUserID(t.Name())

		nonce, _, err := s.Issue(t.Context(), id)
		require.NoError(t, err)

		const workers = 32
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Redeem(t.Context(), id, nonce)
				assert.NoError(t, err)
				if ok {
					successes.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
	})
}
