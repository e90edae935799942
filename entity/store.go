package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/database"
	"github.com/savagetongue/mess-connect0209/utils"
)

const (
	defaultMaxAttempts = 8
	listPageSize       = 100
)

type options struct {
	maxAttempts int
}

// Option tunes a Store.
type Option func(*options)

// WithMaxAttempts bounds the optimistic retry loop used by Patch and Mutate.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Store is the indexed entity store for one entity type. It is the only
// writer of its type's records and index entries.
type Store[T Entity] struct {
	desc        Descriptor[T]
	records     database.RecordStore
	index       database.Index
	listing     database.Listing
	initialJSON []byte
	maxAttempts int
}

// PageResult is one page of decoded entities. Next is nil on the last page.
type PageResult[T Entity] struct {
	Items []T     `json:"items"`
	Next  *string `json:"next"`
}

func New[T Entity](desc Descriptor[T], backend database.Backend, opts ...Option) (*Store[T], error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	if backend.Records == nil || backend.Index == nil || backend.Listing == nil {
		return nil, fmt.Errorf("entity %s: backend is incomplete", desc.TypeName)
	}
	o := options{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	initial, _ := json.Marshal(desc.Initial)
	return &Store[T]{
		desc:        desc,
		records:     backend.Records,
		index:       backend.Index,
		listing:     backend.Listing,
		initialJSON: initial,
		maxAttempts: o.maxAttempts,
	}, nil
}

// MustNew is New for package-level wiring where a bad descriptor is a bug.
func MustNew[T Entity](desc Descriptor[T], backend database.Backend, opts ...Option) *Store[T] {
	s, err := New(desc, backend, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store[T]) TypeName() string { return s.desc.TypeName }

// Initial returns a fresh copy of the descriptor's default state.
func (s *Store[T]) Initial() T {
	v, _ := s.decode(nil)
	return v
}

// Create stores and lists v under v.EntityID() in one step. A second create
// for the same id fails with Conflict and leaves the first one untouched.
func (s *Store[T]) Create(ctx context.Context, v T) (T, error) {
	var zero T
	id := v.EntityID()
	if id == "" {
		return zero, apperrors.Validation("%s: id is required", s.desc.TypeName)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s %s: %w", s.desc.TypeName, id, err)
	}
	if err := s.listing.InsertListed(ctx, s.desc.TypeName, id, data, s.desc.IndexName); err != nil {
		return zero, err
	}
	return v, nil
}

func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.records.Get(ctx, s.desc.TypeName, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	rec, err := s.records.Get(ctx, s.desc.TypeName, id)
	if err != nil {
		return zero, err
	}
	return s.decode(rec.Data)
}

// GetOrCreate returns the stored entity with v's id, creating it from v
// first if it does not exist yet. Used for singletons and seed data.
func (s *Store[T]) GetOrCreate(ctx context.Context, v T) (T, error) {
	got, err := s.Get(ctx, v.EntityID())
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return got, err
	}
	created, err := s.Create(ctx, v)
	if errors.Is(err, apperrors.ErrConflict) {
		return s.Get(ctx, v.EntityID())
	}
	return created, err
}

// Save overwrites the entity unconditionally and makes sure it is listed.
func (s *Store[T]) Save(ctx context.Context, v T) error {
	id := v.EntityID()
	if id == "" {
		return apperrors.Validation("%s: id is required", s.desc.TypeName)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", s.desc.TypeName, id, err)
	}
	return s.listing.PutListed(ctx, s.desc.TypeName, id, data, s.desc.IndexName)
}

// Patch shallow-merges the top-level fields of patch over the stored state.
// The write is a compare-and-swap, so concurrent patches never lose updates.
func (s *Store[T]) Patch(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	if raw, ok := patch["id"]; ok {
		if str, isStr := raw.(string); !isStr || str != id {
			var zero T
			return zero, apperrors.Validation("%s: id cannot be changed", s.desc.TypeName)
		}
	}
	return s.update(ctx, id, func(current []byte) (T, error) {
		merged, err := mergeTopLevel(current, patch)
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := s.decode(merged)
		if err != nil {
			return v, apperrors.Wrap(apperrors.KindValidation, err, "%s: patch does not fit the entity", s.desc.TypeName)
		}
		return v, nil
	})
}

// Mutate applies fn to the current state and writes the result back with
// the same compare-and-swap loop as Patch. fn may run more than once.
func (s *Store[T]) Mutate(ctx context.Context, id string, fn func(*T) error) (T, error) {
	return s.update(ctx, id, func(current []byte) (T, error) {
		v, err := s.decode(current)
		if err != nil {
			return v, err
		}
		if err := fn(&v); err != nil {
			return v, err
		}
		return v, nil
	})
}

func (s *Store[T]) update(ctx context.Context, id string, apply func([]byte) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		rec, err := s.records.Get(ctx, s.desc.TypeName, id)
		if err != nil {
			return zero, err
		}
		next, err := apply(rec.Data)
		if err != nil {
			return zero, err
		}
		if next.EntityID() != id {
			return zero, apperrors.Validation("%s: id cannot be changed", s.desc.TypeName)
		}
		data, err := json.Marshal(next)
		if err != nil {
			return zero, fmt.Errorf("encode %s %s: %w", s.desc.TypeName, id, err)
		}
		err = s.records.Swap(ctx, s.desc.TypeName, id, data, rec.Version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return zero, err
		}
		casRetries.WithLabelValues(s.desc.TypeName).Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
	}
	return zero, apperrors.Conflict("%s %s is being modified concurrently, try again", s.desc.TypeName, id)
}

// Delete unlists the entity and removes its record in one step. It reports
// whether the record existed.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	return s.listing.DeleteListed(ctx, s.desc.TypeName, id, s.desc.IndexName)
}

// Page returns up to limit entities after cursor in listing order.
func (s *Store[T]) Page(ctx context.Context, cursor string, limit int) (PageResult[T], error) {
	page, err := s.index.Page(ctx, s.desc.IndexName, cursor, limit)
	if err != nil {
		return PageResult[T]{}, err
	}
	recs, err := s.records.GetMany(ctx, s.desc.TypeName, page.IDs)
	if err != nil {
		return PageResult[T]{}, err
	}

	items := make([]T, 0, len(page.IDs))
	for _, id := range page.IDs {
		rec, ok := recs[id]
		if !ok {
			var found bool
			rec, found, err = s.recheck(ctx, id)
			if err != nil {
				return PageResult[T]{}, err
			}
			if !found {
				continue
			}
		}
		v, err := s.decode(rec.Data)
		if err != nil {
			return PageResult[T]{}, err
		}
		items = append(items, v)
	}
	return PageResult[T]{Items: items, Next: page.Next}, nil
}

// recheck resolves an id the index listed but the bulk read did not return.
// An id that is no longer listed was deleted meanwhile and is skipped. A
// record that shows up again was re-created and is returned. An id that
// stays listed with no record is reported.
func (s *Store[T]) recheck(ctx context.Context, id string) (database.Record, bool, error) {
	for round := 0; round < 2; round++ {
		listed, err := s.index.Contains(ctx, s.desc.IndexName, id)
		if err != nil {
			return database.Record{}, false, err
		}
		if !listed {
			return database.Record{}, false, nil
		}
		rec, err := s.records.Get(ctx, s.desc.TypeName, id)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return database.Record{}, false, err
		}
	}
	inconsistencies.WithLabelValues(s.desc.TypeName).Inc()
	utils.ErrorLogger.WithFields(map[string]interface{}{
		"entity": s.desc.TypeName,
		"index":  s.desc.IndexName,
		"id":     id,
	}).Error("Index lists an id with no stored record")
	return database.Record{}, false, apperrors.New(apperrors.KindStoreInconsistency,
		"%s index lists %s but no record exists", s.desc.TypeName, id)
}

// List returns every entity in listing order.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	var all []T
	cursor := ""
	for {
		page, err := s.Page(ctx, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Next == nil {
			return all, nil
		}
		cursor = *page.Next
	}
}

// IDs returns every listed id without reading records.
func (s *Store[T]) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		page, err := s.index.Page(ctx, s.desc.IndexName, cursor, database.MaxPageLimit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, page.IDs...)
		if page.Next == nil {
			return ids, nil
		}
		cursor = *page.Next
	}
}

// Wipe deletes every listed entity of this type.
func (s *Store[T]) Wipe(ctx context.Context) (BulkResult, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	return s.DeleteMany(ctx, ids)
}

// decode reads data over a fresh copy of the initial state.
func (s *Store[T]) decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(s.initialJSON, &v); err != nil {
		return v, fmt.Errorf("decode initial %s: %w", s.desc.TypeName, err)
	}
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", s.desc.TypeName, err)
	}
	return v, nil
}

func mergeTopLevel(current []byte, patch map[string]interface{}) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &fields); err != nil {
		return nil, fmt.Errorf("decode stored body: %w", err)
	}
	for k, v := range patch {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, err, "field %s cannot be encoded", k)
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
