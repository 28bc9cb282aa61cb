package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
)

// VerifiedTopic is the topic successful verifications are published to
const VerifiedTopic = "keyauth.verified"

// VerifiedEvent represents a successful challenge verification
type VerifiedEvent struct {
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     VerifiedTopic,
	}
}

// PublishVerified publishes a verification event
func (p *WatermillPublisher) PublishVerified(ctx context.Context, session *core.Session) error {
	event := VerifiedEvent{
		UserID:    session.UserID.String(),
		Address:   session.Address,
		TokenID:   session.ID,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := session.ID
	if id == "" {
		id = watermill.NewUUID()
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) PublishVerified(context.Context, *core.Session) error { return nil }
