package decisionlog

import (
	"context"
	"time"

	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/state"
)

// Log is the append-only decision history plus the last known device
// status. Appends must never block a control cycle on failure, callers
// log and move on.
type Log interface {
	Append(ctx context.Context, r *pool.Record) (int64, error)
	Recent(ctx context.Context, deviceID string, limit int) ([]*pool.Record, error)

	// LastChange is the time of the latest entry that actually moved the
	// device. Zero when nothing was ever dispatched.
	LastChange(ctx context.Context, deviceID string) (time.Time, error)

	Unsynced(ctx context.Context, limit int) ([]*pool.Record, error)
	MarkSynced(ctx context.Context, ids []int64) error

	SaveStatus(ctx context.Context, s state.Status) error
	LastStatus(ctx context.Context, deviceID string) (*state.Status, error)

	Close() error
}
