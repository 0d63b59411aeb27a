// Package store is the durable backing for lobby state. The coordinator is
// the only writer; transports never touch a Store directly.
package store

import (
	"context"

	"github.com/dkeye/charge/internal/domain"
)

// Store is an opaque durable record store keyed by game id.
// Read reports a miss with ok=false and a nil error; every failure is
// wrapped in domain.ErrStore.
type Store interface {
	Read(ctx context.Context, id domain.GameID) (domain.Game, bool, error)
	Write(ctx context.Context, g domain.Game) error
	ReadMembership(ctx context.Context, id domain.GameID) ([]domain.Membership, error)
	WriteMembership(ctx context.Context, id domain.GameID, roster []domain.Membership) error
	Delete(ctx context.Context, id domain.GameID) error
	List(ctx context.Context) ([]domain.Game, error)
}
