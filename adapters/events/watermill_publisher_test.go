package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/keyauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_PublishVerified(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, VerifiedTopic)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &core.Session{
		ID:        "token-1",
		UserID:    core.DeriveUserID("alice"),
		Address:   "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	require.NoError(t, NewWatermillPublisher(pubSub).PublishVerified(ctx, session))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "token-1", msg.UUID)

		var event VerifiedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, session.UserID.String(), event.UserID)
		assert.Equal(t, session.Address, event.Address)
		assert.Equal(t, "token-1", event.TokenID)
		assert.True(t, event.ExpiresAt.Equal(session.ExpiresAt))
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestWatermillPublisher_PublishError(t *testing.T) {
	err := NewWatermillPublisher(failingPublisher{}).PublishVerified(context.Background(), &core.Session{})
	assert.ErrorContains(t, err, "broker down")
}
