package keyauth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/keyauth/adapters/signature"
	"github.com/layer-3/keyauth/core"
)

const defaultTimeout = 15 * time.Second

// Client talks to a keyauth server over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL, e.g. http://localhost:3001
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ API = (*Client)(nil)

func (c *Client) Challenge(ctx context.Context, username string) (*Challenge, error) {
	var resp struct {
		UserID string `json:"userId"`
		Nonce  string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", "", map[string]string{"username": username}, &resp); err != nil {
		return nil, err
	}

	nonce, err := hexutil.Decode(resp.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keyauth: malformed nonce %q: %w", resp.Nonce, err)
	}

	return &Challenge{UserID: resp.UserID, Nonce: nonce}, nil
}

func (c *Client) Verify(ctx context.Context, userID string, sig []byte) (string, error) {
	body := map[string]string{
		"userId":    userID,
		"signature": hexutil.Encode(sig),
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/verify", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) Events(ctx context.Context, token string) ([]core.RegistryEvent, error) {
	var events []core.RegistryEvent
	if err := c.do(ctx, http.MethodGet, "/events", token, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Login(ctx context.Context, username string, key *ecdsa.PrivateKey) (string, error) {
	ch, err := c.Challenge(ctx, username)
	if err != nil {
		return "", err
	}

	sig, err := SignNonce(ch.Nonce, key)
	if err != nil {
		return "", err
	}

	return c.Verify(ctx, ch.UserID, sig)
}

// SignNonce produces the personal_sign signature a wallet returns for nonce
func SignNonce(nonce []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	return signature.Sign(nonce, key)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("keyauth: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("keyauth: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("keyauth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("keyauth: decode %s response: %w", path, err)
	}
	return nil
}
