package core

import "time"

// Challenge represents an authentication challenge issued to a user
type Challenge struct {
	UserID    UserID    // Subject the challenge was issued for
	Nonce     []byte    // Random value the wallet must sign
	ExpiresAt time.Time // When the challenge stops being redeemable
}

// ChallengeStatus tags the lifecycle position of a user's challenge
type ChallengeStatus int

const (
	ChallengeAbsent ChallengeStatus = iota
	ChallengePending
	ChallengeConsumed
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengePending:
		return "pending"
	case ChallengeConsumed:
		return "consumed"
	default:
		return "absent"
	}
}

// ChallengeState is the tagged state a nonce store keeps per user.
// Nonce and ExpiresAt are only meaningful while Status is ChallengePending.
type ChallengeState struct {
	Status    ChallengeStatus
	Nonce     []byte
	ExpiresAt time.Time
}

// Session represents an authenticated user session
type Session struct {
	ID        string    // Unique token identifier
	UserID    UserID    // Subject of the session
	Address   string    // Checksummed address that signed the challenge
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}
