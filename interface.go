package keyauth

import (
	"context"
	"crypto/ecdsa"

	"github.com/layer-3/keyauth/core"
)

// API is the surface a keyauth server exposes to wallets and frontends
type API interface {
	// Challenge asks for a nonce bound to the hashed username
	Challenge(ctx context.Context, username string) (*Challenge, error)

	// Verify exchanges a signed nonce for a session token
	Verify(ctx context.Context, userID string, signature []byte) (string, error)

	// Me returns the identity carried by a session token
	Me(ctx context.Context, token string) (*Identity, error)

	// Events lists recent key registry events
	Events(ctx context.Context, token string) ([]core.RegistryEvent, error)

	// Login runs Challenge, signs the nonce with key, and calls Verify
	Login(ctx context.Context, username string, key *ecdsa.PrivateKey) (string, error)
}

// Challenge is an issued nonce for a user
type Challenge struct {
	UserID string
	Nonce  []byte
}

// Identity is the session owner as reported by /me
type Identity struct {
	UserID  string `json:"userId"`
	Address string `json:"address"`
}
