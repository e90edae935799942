package database

import (
	"context"
	"errors"
	"strconv"

	"github.com/savagetongue/mess-connect0209/apperrors"
)

// ErrVersionConflict is returned by Swap when the stored version moved on.
var ErrVersionConflict = errors.New("record version changed")

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
)

// Record is a stored entity body plus its write version.
type Record struct {
	Data    []byte
	Version int64
}

// RecordStore is a keyed blob store addressed by (kind, id). It does no
// indexing; Insert and Swap are the only operations with conditions.
type RecordStore interface {
	Get(ctx context.Context, kind, id string) (Record, error)
	GetMany(ctx context.Context, kind string, ids []string) (map[string]Record, error)
	Put(ctx context.Context, kind, id string, data []byte) error
	Insert(ctx context.Context, kind, id string, data []byte) error
	Swap(ctx context.Context, kind, id string, data []byte, version int64) error
	Delete(ctx context.Context, kind, id string) (bool, error)
}

// Page is one slice of an index. Next is nil on the final page.
type Page struct {
	IDs  []string
	Next *string
}

// Index is an ordered, deduplicated set of ids per index name.
type Index interface {
	Add(ctx context.Context, name, id string) error
	Remove(ctx context.Context, name, id string) error
	Contains(ctx context.Context, name, id string) (bool, error)
	Page(ctx context.Context, name, cursor string, limit int) (Page, error)
}

// Listing changes a record and its index entry in one atomic step. A reader
// never sees an id listed without its record.
type Listing interface {
	// InsertListed stores a new record and lists it. An existing record is a
	// Conflict and nothing changes.
	InsertListed(ctx context.Context, kind, id string, data []byte, index string) error
	// PutListed overwrites or creates the record and lists it.
	PutListed(ctx context.Context, kind, id string, data []byte, index string) error
	// DeleteListed unlists the id and deletes its record, reporting whether
	// the record existed.
	DeleteListed(ctx context.Context, kind, id, index string) (bool, error)
}

// Backend bundles what every entity store needs: the records, the index,
// and the atomic writes spanning both.
type Backend struct {
	Records RecordStore
	Index   Index
	Listing Listing
	Close   func() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// parseCursor turns an opaque cursor into the sequence number it encodes.
// The empty cursor is the start of the index.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq < 0 {
		return 0, apperrors.Validation("invalid cursor %q", cursor)
	}
	return seq, nil
}

func formatCursor(seq int64) *string {
	s := strconv.FormatInt(seq, 10)
	return &s
}

func recordNotFound(kind, id string) error {
	return apperrors.NotFound("%s %s not found", kind, id)
}

func recordExists(kind, id string) error {
	return apperrors.Conflict("%s %s already exists", kind, id)
}
