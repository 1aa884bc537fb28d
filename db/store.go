package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Collections used by the civic report engine.
const (
	CollectionReports     = "civic_reports"
	CollectionUsers       = "users"
	CollectionEscalations = "escalated_reports"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyExists   = errors.New("document already exists")
	ErrVersionConflict = errors.New("document version conflict")
)

// Document is a versioned JSON document addressed by collection and key.
type Document struct {
	Key       string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// Store is a keyed document store with optimistic concurrency.
// Every write to an existing document goes through CompareAndUpdate.
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, key string) (*Document, error)
	// Create stores a new document at version 1, or returns ErrAlreadyExists.
	Create(ctx context.Context, collection, key string, data []byte) error
	// CompareAndUpdate replaces the document and bumps its version only if the
	// stored version equals expectedVersion. It returns ErrVersionConflict when
	// another writer got there first and ErrNotFound when the document is gone.
	CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error
	List(ctx context.Context, collection string) ([]*Document, error)
	Close() error
}

const maxUpdateAttempts = 16

// mutateDocument runs a read / modify / CompareAndUpdate loop against one document.
// fn sees the freshest copy on every attempt, so validation inside fn is
// re-run after a conflict.
func mutateDocument(ctx context.Context, store Store, collection, key string, fn func(doc *Document) ([]byte, error)) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := store.Get(ctx, collection, key)
		if err != nil {
			return err
		}
		data, err := fn(doc)
		if err != nil {
			return err
		}
		err = store.CompareAndUpdate(ctx, collection, key, doc.Version, data)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return err
	}
	return errors.Wrapf(ErrVersionConflict, "%s/%s: gave up after %d attempts", collection, key, maxUpdateAttempts)
}
