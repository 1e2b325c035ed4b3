package port

import (
	"context"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"
)

// StatesClient is the pull-source collaborator: a bulk "all states" endpoint
// that must be polled at a bounded rate, plus optional per-sensor history.
type StatesClient interface {
	States(ctx context.Context) ([]hastates.EntityState, error)
	History(ctx context.Context, entityId string, start, end time.Time) ([]hastates.EntityState, error)
	Ping(ctx context.Context) error
}

// Notifier delivers an alert to a recipient. The core decides when and what,
// never how.
type Notifier interface {
	Send(ctx context.Context, recipientId string, n domain.Notification) error
}

// OwnerRegistry maps a device to the recipient its alerts are addressed to.
// An empty owner means "use the default recipient".
type OwnerRegistry interface {
	OwnerOf(ctx context.Context, deviceId string) (string, error)
}
