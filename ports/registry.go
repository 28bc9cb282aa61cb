package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/keyauth/core"
)

// Registry is the read-only view of the on-chain key registry
type Registry interface {
	// IsKey reports whether key is currently authorized for userID
	IsKey(ctx context.Context, userID core.UserID, key common.Address) (bool, error)

	// RecentEvents returns decoded registry logs from the last window blocks
	RecentEvents(ctx context.Context, window uint64) ([]core.RegistryEvent, error)
}
