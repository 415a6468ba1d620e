package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
)

// RoomService is the surface of one room actor used by transports and the
// registry.
type RoomService interface {
	ID() string
	Connect(client *hub.Client) error
	HandleFrame(client *hub.Client, raw []byte)
	Disconnect(client *hub.Client)
	Snapshot(ctx context.Context) (domain.RoomSnapshot, error)
	Evict(ctx context.Context) error
	IdleSince() (time.Time, bool)
	Stop(ctx context.Context) error
}
