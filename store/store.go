// Package store defines the aggregate persistence interface used by the
// engine. Queue state is held in memory only; see store/memory.
package store

import (
	"context"

	"github.com/xraph/mediaq/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store

	// Ping checks that the store is usable.
	Ping(ctx context.Context) error
}
