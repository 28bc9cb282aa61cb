package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/service"
)

const sessionKey = "session"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// ChallengeRequest is the body of POST /auth/challenge
type ChallengeRequest struct {
	Username string `json:"username"`
}

// ChallengeResponse is returned by POST /auth/challenge
type ChallengeResponse struct {
	UserID string `json:"userId"`
	Nonce  string `json:"nonce"`
}

// VerifyRequest is the body of POST /auth/verify
type VerifyRequest struct {
	UserID    string `json:"userId"`
	Signature string `json:"signature"`
}

// VerifyResponse is returned by POST /auth/verify
type VerifyResponse struct {
	Token string `json:"token"`
}

// MeResponse is returned by GET /me
type MeResponse struct {
	UserID  string `json:"userId"`
	Address string `json:"address"`
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": core.ErrMissingUsername.Error()})
		return
	}

	challenge, err := h.authService.CreateChallenge(c.Request.Context(), req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{
		UserID: challenge.UserID.String(),
		Nonce:  hexutil.Encode(challenge.Nonce),
	})
}

// Verify handles the signed challenge and returns a session token
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": core.ErrMissingFields.Error()})
		return
	}

	token, session, err := h.authService.Verify(c.Request.Context(), req.UserID, req.Signature)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "challenge verified",
		"user_id", session.UserID.String(),
		"address", session.Address,
		"token_id", session.ID,
	)

	c.JSON(http.StatusOK, VerifyResponse{Token: token})
}

// Me returns the identity carried by the session token
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		UserID:  session.UserID.String(),
		Address: session.Address,
	})
}

// Events returns recent registry events
func (h *AuthHandlers) Events(c *gin.Context) {
	events, err := h.authService.RecentEvents(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// NotFound is the fallback for unknown routes
func (h *AuthHandlers) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

// respondError maps service errors to status codes. Only the sentinel
// message crosses the boundary; details are logged.
func (h *AuthHandlers) respondError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	errorMsg := "internal error"

	switch {
	case errors.Is(err, core.ErrMissingUsername):
		statusCode, errorMsg = http.StatusBadRequest, core.ErrMissingUsername.Error()
	case errors.Is(err, core.ErrMissingFields):
		statusCode, errorMsg = http.StatusBadRequest, core.ErrMissingFields.Error()
	case errors.Is(err, core.ErrInvalidUserID):
		statusCode, errorMsg = http.StatusBadRequest, core.ErrInvalidUserID.Error()
	case errors.Is(err, core.ErrChallengeNotFound):
		statusCode, errorMsg = http.StatusBadRequest, core.ErrChallengeNotFound.Error()
	case errors.Is(err, core.ErrInvalidSignature):
		statusCode, errorMsg = http.StatusBadRequest, core.ErrInvalidSignature.Error()
	case errors.Is(err, core.ErrNotAuthorized):
		statusCode, errorMsg = http.StatusUnauthorized, core.ErrNotAuthorized.Error()
	case errors.Is(err, core.ErrOracleUnavailable):
		statusCode, errorMsg = http.StatusServiceUnavailable, core.ErrOracleUnavailable.Error()
	case errors.Is(err, core.ErrEventsUnavailable):
		statusCode, errorMsg = http.StatusInternalServerError, core.ErrEventsUnavailable.Error()
	case errors.Is(err, core.ErrTokenExpired):
		statusCode, errorMsg = http.StatusUnauthorized, core.ErrTokenExpired.Error()
	case errors.Is(err, core.ErrInvalidToken):
		statusCode, errorMsg = http.StatusUnauthorized, core.ErrInvalidToken.Error()
	}

	level := slog.LevelInfo
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "request failed",
		"path", c.FullPath(),
		"status", statusCode,
		"err", err,
	)

	c.JSON(statusCode, gin.H{"error": errorMsg})
}

func sessionFrom(c *gin.Context) (*core.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*core.Session)
	return session, ok
}
