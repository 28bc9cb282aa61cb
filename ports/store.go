package ports

import (
	"context"
	"time"

	"github.com/layer-3/keyauth/core"
)

// NonceStore keeps at most one single-use challenge nonce per user
type NonceStore interface {
	// Issue generates a fresh nonce for the user, replacing any previous
	// challenge, and reports when it expires
	Issue(ctx context.Context, userID core.UserID) (nonce []byte, expiresAt time.Time, err error)

	// Peek returns the pending nonce, or core.ErrChallengeNotFound if absent or expired
	Peek(ctx context.Context, userID core.UserID) ([]byte, error)

	// Redeem consumes the challenge only if it still holds nonce.
	// It reports whether this call performed the consumption.
	Redeem(ctx context.Context, userID core.UserID, nonce []byte) (bool, error)

	// Consume invalidates the user's challenge unconditionally
	Consume(ctx context.Context, userID core.UserID) error

	// State reports the tagged challenge state for the user
	State(ctx context.Context, userID core.UserID) (core.ChallengeState, error)
}
