package ports

import (
	"context"

	"github.com/layer-3/keyauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishVerified(ctx context.Context, session *core.Session) error
}
