package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
)

const AudienceSession = "session:access"

// DefaultSessionTTL is the validity window of issued session tokens
const DefaultSessionTTL = time.Hour

// ErrEmptySecret is returned when the tokenizer is built without a signing secret
var ErrEmptySecret = errors.New("signing secret is empty")

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret []byte, ttl time.Duration) (*JWTTokenizer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &JWTTokenizer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// IssueSession signs a session token binding userID to address
func (j *JWTTokenizer) IssueSession(userID core.UserID, address string) (string, *core.Session, error) {
	now := j.now().Truncate(time.Second)
	session := &core.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(j.ttl),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Address: address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, session, nil
}

// VerifySession parses a session token and returns the associated session
func (j *JWTTokenizer) VerifySession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", core.ErrInvalidToken)
	}

	userID, err := core.ParseUserID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", core.ErrInvalidToken)
	}

	if claims.Address == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing claims", core.ErrInvalidToken)
	}

	return &core.Session{
		ID:        claims.ID,
		UserID:    userID,
		Address:   claims.Address,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// TTL returns the validity window of issued tokens
func (j *JWTTokenizer) TTL() time.Duration {
	return j.ttl
}
