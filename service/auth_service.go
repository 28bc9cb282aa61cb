package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
)

const (
	DefaultOracleTimeout = 5 * time.Second
	DefaultEventsTimeout = 10 * time.Second
	DefaultEventWindow   = 5000
)

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.NonceStore
	verifier  ports.SignatureVerifier
	registry  ports.Registry
	eventPub  ports.EventPublisher
	logger    *slog.Logger

	oracleTimeout time.Duration
	eventsTimeout time.Duration
	eventWindow   uint64
}

// Option configures an AuthService
type Option func(*AuthService)

// WithOracleTimeout bounds each isKey call
func WithOracleTimeout(d time.Duration) Option {
	return func(s *AuthService) { s.oracleTimeout = d }
}

// WithEventsTimeout bounds each event log query
func WithEventsTimeout(d time.Duration) Option {
	return func(s *AuthService) { s.eventsTimeout = d }
}

// WithEventWindow sets how many blocks back RecentEvents looks
func WithEventWindow(blocks uint64) Option {
	return func(s *AuthService) { s.eventWindow = blocks }
}

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.NonceStore,
	verifier ports.SignatureVerifier,
	registry ports.Registry,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:     tokenizer,
		store:         store,
		verifier:      verifier,
		registry:      registry,
		eventPub:      eventPub,
		logger:        slog.Default(),
		oracleTimeout: DefaultOracleTimeout,
		eventsTimeout: DefaultEventsTimeout,
		eventWindow:   DefaultEventWindow,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateChallenge issues a nonce for the hashed username, replacing any
// challenge already pending for it.
func (s *AuthService) CreateChallenge(ctx context.Context, username string) (*core.Challenge, error) {
	if strings.TrimSpace(username) == "" {
		return nil, core.ErrMissingUsername
	}

	userID := core.DeriveUserID(username)

	nonce, expiresAt, err := s.store.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue nonce: %w", err)
	}

	challengesIssued.Inc()

	return &core.Challenge{
		UserID:    userID,
		Nonce:     nonce,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature over the pending nonce, asks the registry
// whether the signer is a key of userID, consumes the nonce and returns a
// session token. The nonce is only consumed on success.
func (s *AuthService) Verify(ctx context.Context, userIDStr, signatureStr string) (string, *core.Session, error) {
	token, session, err := s.verify(ctx, userIDStr, signatureStr)
	verifications.WithLabelValues(outcome(err)).Inc()
	return token, session, err
}

func (s *AuthService) verify(ctx context.Context, userIDStr, signatureStr string) (string, *core.Session, error) {
	if strings.TrimSpace(userIDStr) == "" || strings.TrimSpace(signatureStr) == "" {
		return "", nil, core.ErrMissingFields
	}

	userID, err := core.ParseUserID(userIDStr)
	if err != nil {
		return "", nil, err
	}

	nonce, err := s.store.Peek(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	sig, err := hexutil.Decode(strings.TrimSpace(signatureStr))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	address, err := s.verifier.RecoverAddress(nonce, sig)
	if err != nil {
		return "", nil, err
	}

	oracleCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	start := time.Now()
	ok, err := s.registry.IsKey(oracleCtx, userID, address)
	registryLatency.WithLabelValues("isKey").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, core.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrOracleUnavailable, err)
		}
		return "", nil, err
	}
	if !ok {
		return "", nil, core.ErrNotAuthorized
	}

	redeemed, err := s.store.Redeem(ctx, userID, nonce)
	if err != nil {
		return "", nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !redeemed {
		// Another verification or a newer challenge got there first
		return "", nil, core.ErrChallengeNotFound
	}

	token, session, err := s.tokenizer.IssueSession(userID, address.Hex())
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue session: %w", err)
	}

	if err := s.eventPub.PublishVerified(ctx, session); err != nil {
		s.logger.WarnContext(ctx, "failed to publish verified event",
			"user_id", userID.String(),
			"err", err,
		)
	}

	return token, session, nil
}

// Authenticate validates a session token. No registry lookup is made;
// the token is authoritative until it expires.
func (s *AuthService) Authenticate(_ context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}
	return s.tokenizer.VerifySession(token)
}

// RecentEvents returns registry events from the configured block window
func (s *AuthService) RecentEvents(ctx context.Context) ([]core.RegistryEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.eventsTimeout)
	defer cancel()

	start := time.Now()
	events, err := s.registry.RecentEvents(ctx, s.eventWindow)
	registryLatency.WithLabelValues("events").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, core.ErrEventsUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrEventsUnavailable, err)
		}
		return nil, err
	}

	return events, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, core.ErrMissingFields), errors.Is(err, core.ErrInvalidUserID):
		return "bad_request"
	case errors.Is(err, core.ErrChallengeNotFound):
		return "no_challenge"
	case errors.Is(err, core.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, core.ErrNotAuthorized):
		return "unauthorized"
	case errors.Is(err, core.ErrOracleUnavailable):
		return "registry_unavailable"
	default:
		return "error"
	}
}
