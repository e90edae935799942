package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/savagetongue/mess-connect0209/utils"
)

const bulkAttempts = 3

// BulkResult accounts for every id passed to DeleteMany.
type BulkResult struct {
	Deleted []string `json:"deleted"`
	Missing []string `json:"missing"`
	Failed  []string `json:"failed"`
}

// DeleteMany unlists and deletes each id, retrying per id. Every id ends up
// in exactly one of Deleted, Missing or Failed. A failed id keeps both its
// record and its index entry.
func (s *Store[T]) DeleteMany(ctx context.Context, ids []string) (BulkResult, error) {
	result := BulkResult{Deleted: []string{}, Missing: []string{}, Failed: []string{}}
	var errs []error
	for _, id := range dedupe(ids) {
		var existed bool
		err := s.retry(ctx, func() error {
			var err error
			existed, err = s.listing.DeleteListed(ctx, s.desc.TypeName, id, s.desc.IndexName)
			return err
		})
		switch {
		case err != nil:
			result.Failed = append(result.Failed, id)
			errs = append(errs, fmt.Errorf("delete %s %s: %w", s.desc.TypeName, id, err))
		case existed:
			result.Deleted = append(result.Deleted, id)
		default:
			result.Missing = append(result.Missing, id)
		}
	}

	if len(result.Failed) > 0 {
		bulkFailures.WithLabelValues(s.desc.TypeName).Add(float64(len(result.Failed)))
		utils.ErrorLogger.WithFields(map[string]interface{}{
			"entity": s.desc.TypeName,
			"failed": len(result.Failed),
		}).Error("Bulk delete left records behind")
	}
	return result, errors.Join(errs...)
}

func (s *Store[T]) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < bulkAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
