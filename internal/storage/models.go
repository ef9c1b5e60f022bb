package storage

import (
	"context"
	"time"
)

// MetadataStore persists the encoded metadata of all console processes of a
// session. Load returns exactly the bytes of the last Save, or nil if nothing
// was saved yet.
type MetadataStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Snapshot is one saved metadata payload.
type Snapshot struct {
	Scope     string
	Payload   []byte
	UpdatedAt time.Time
}
