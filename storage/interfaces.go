package storage

import (
	"context"
	"errors"
	"time"

	"costa-catalog/catalog"
)

// ErrNoSnapshot is returned by SnapshotStore.Load when a feed has never been
// saved.
var ErrNoSnapshot = errors.New("storage: no snapshot")

// Snapshot is the last successfully fetched payload of one feed.
type Snapshot struct {
	FeedID  string
	Payload []byte
	SavedAt time.Time
}

// SnapshotStore keeps the last-good raw payload per feed. Save replaces the
// previous snapshot wholesale.
type SnapshotStore interface {
	Save(ctx context.Context, feedID string, payload []byte) error
	Load(ctx context.Context, feedID string) (Snapshot, error)
}

// CatalogWriter is the interface any catalog export backend must satisfy.
type CatalogWriter interface {
	Write(ctx context.Context, cat *catalog.Catalog) error
	Close() error
}

var (
	_ SnapshotStore = (*FileSnapshotStore)(nil)
	_ SnapshotStore = (*RedisSnapshotStore)(nil)
	_ CatalogWriter = (*JSONWriter)(nil)
	_ CatalogWriter = (*CSVWriter)(nil)
	_ CatalogWriter = (*PostgresWriter)(nil)
)
