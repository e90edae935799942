package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/suite"

	"github.com/savagetongue/mess-connect0209/apperrors"
)

// BackendSuite checks the RecordStore and Index contract. Each backend test
// embeds it and supplies newBackend.
type BackendSuite struct {
	suite.Suite
	newBackend func() Backend
	backend    Backend
	ctx        context.Context
}

func (s *BackendSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = s.newBackend()
}

func (s *BackendSuite) TearDownTest() {
	if s.backend.Close != nil {
		s.NoError(s.backend.Close())
	}
}

func (s *BackendSuite) TestRecordLifecycle() {
	rs := s.backend.Records

	s.Run("get on absent id is not found", func() {
		_, err := rs.Get(s.ctx, "user", "missing")
		s.ErrorIs(err, apperrors.ErrNotFound)
	})

	s.Run("insert then get round trips", func() {
		s.Require().NoError(rs.Insert(s.ctx, "user", "a", []byte(`{"id":"a"}`)))
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.JSONEq(`{"id":"a"}`, string(rec.Data))
		s.Equal(int64(1), rec.Version)
	})

	s.Run("second insert conflicts and keeps the first body", func() {
		err := rs.Insert(s.ctx, "user", "a", []byte(`{"id":"a","name":"other"}`))
		s.ErrorIs(err, apperrors.ErrConflict)
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.JSONEq(`{"id":"a"}`, string(rec.Data))
	})

	s.Run("put overwrites and bumps version", func() {
		s.Require().NoError(rs.Put(s.ctx, "user", "a", []byte(`{"id":"a","v":2}`)))
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.JSONEq(`{"id":"a","v":2}`, string(rec.Data))
		s.Equal(int64(2), rec.Version)
	})

	s.Run("put creates absent records", func() {
		s.Require().NoError(rs.Put(s.ctx, "user", "b", []byte(`{"id":"b"}`)))
		rec, err := rs.Get(s.ctx, "user", "b")
		s.Require().NoError(err)
		s.Equal(int64(1), rec.Version)
	})

	s.Run("kinds do not share ids", func() {
		_, err := rs.Get(s.ctx, "complaint", "a")
		s.ErrorIs(err, apperrors.ErrNotFound)
	})

	s.Run("delete reports whether the record existed", func() {
		existed, err := rs.Delete(s.ctx, "user", "b")
		s.Require().NoError(err)
		s.True(existed)
		existed, err = rs.Delete(s.ctx, "user", "b")
		s.Require().NoError(err)
		s.False(existed)
	})
}

func (s *BackendSuite) TestSwap() {
	rs := s.backend.Records
	s.Require().NoError(rs.Insert(s.ctx, "note", "n1", []byte(`{"v":1}`)))

	s.Run("matching version wins", func() {
		s.Require().NoError(rs.Swap(s.ctx, "note", "n1", []byte(`{"v":2}`), 1))
		rec, err := rs.Get(s.ctx, "note", "n1")
		s.Require().NoError(err)
		s.Equal(int64(2), rec.Version)
		s.JSONEq(`{"v":2}`, string(rec.Data))
	})

	s.Run("stale version is rejected", func() {
		err := rs.Swap(s.ctx, "note", "n1", []byte(`{"v":3}`), 1)
		s.ErrorIs(err, ErrVersionConflict)
	})

	s.Run("absent record is not found", func() {
		err := rs.Swap(s.ctx, "note", "missing", []byte(`{}`), 1)
		s.ErrorIs(err, apperrors.ErrNotFound)
	})
}

func (s *BackendSuite) TestGetManySkipsMissing() {
	rs := s.backend.Records
	s.Require().NoError(rs.Put(s.ctx, "menu", "x", []byte(`{"id":"x"}`)))
	s.Require().NoError(rs.Put(s.ctx, "menu", "y", []byte(`{"id":"y"}`)))

	got, err := rs.GetMany(s.ctx, "menu", []string{"x", "nope", "y"})
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Contains(got, "x")
	s.Contains(got, "y")

	empty, err := rs.GetMany(s.ctx, "menu", nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *BackendSuite) TestConcurrentInsertHasOneWinner() {
	rs := s.backend.Records
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := rs.Insert(s.ctx, "paymentPeriod", "u1:2024-05", []byte(fmt.Sprintf(`{"n":%d}`, i)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, apperrors.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(9), conflicts.Load())
}

func (s *BackendSuite) TestIndexOrderingAndPaging() {
	ix := s.backend.Index
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Require().NoError(ix.Add(s.ctx, "users", id))
	}
	s.Require().NoError(ix.Add(s.ctx, "users", "b"))

	s.Run("pages walk insertion order", func() {
		first, err := ix.Page(s.ctx, "users", "", 2)
		s.Require().NoError(err)
		s.Equal([]string{"a", "b"}, first.IDs)
		s.Require().NotNil(first.Next)

		second, err := ix.Page(s.ctx, "users", *first.Next, 2)
		s.Require().NoError(err)
		s.Equal([]string{"c", "d"}, second.IDs)
		s.Require().NotNil(second.Next)

		last, err := ix.Page(s.ctx, "users", *second.Next, 2)
		s.Require().NoError(err)
		s.Equal([]string{"e"}, last.IDs)
		s.Nil(last.Next)
	})

	s.Run("exact fit has no next cursor", func() {
		page, err := ix.Page(s.ctx, "users", "", 5)
		s.Require().NoError(err)
		s.Len(page.IDs, 5)
		s.Nil(page.Next)
	})

	s.Run("removal keeps remaining order", func() {
		s.Require().NoError(ix.Remove(s.ctx, "users", "b"))
		s.Require().NoError(ix.Remove(s.ctx, "users", "d"))
		s.Require().NoError(ix.Remove(s.ctx, "users", "zzz"))
		page, err := ix.Page(s.ctx, "users", "", 10)
		s.Require().NoError(err)
		s.Equal([]string{"a", "c", "e"}, page.IDs)
	})

	s.Run("re-added id goes to the end", func() {
		s.Require().NoError(ix.Add(s.ctx, "users", "b"))
		page, err := ix.Page(s.ctx, "users", "", 10)
		s.Require().NoError(err)
		s.Equal([]string{"a", "c", "e", "b"}, page.IDs)
	})

	s.Run("contains tracks membership", func() {
		ok, err := ix.Contains(s.ctx, "users", "c")
		s.Require().NoError(err)
		s.True(ok)
		ok, err = ix.Contains(s.ctx, "users", "d")
		s.Require().NoError(err)
		s.False(ok)
		ok, err = ix.Contains(s.ctx, "other", "c")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *BackendSuite) TestIndexEdgeCases() {
	ix := s.backend.Index

	s.Run("empty index yields an empty final page", func() {
		page, err := ix.Page(s.ctx, "nothing", "", 10)
		s.Require().NoError(err)
		s.Empty(page.IDs)
		s.Nil(page.Next)
	})

	s.Run("garbage cursor is a validation error", func() {
		_, err := ix.Page(s.ctx, "nothing", "not-a-cursor", 10)
		s.ErrorIs(err, apperrors.ErrValidation)
	})

	s.Run("removing from an empty index is a no-op", func() {
		s.NoError(ix.Remove(s.ctx, "nothing", "x"))
	})
}

func (s *BackendSuite) TestListingWritesBothHalves() {
	ls, rs, ix := s.backend.Listing, s.backend.Records, s.backend.Index

	s.Run("insert stores and lists", func() {
		s.Require().NoError(ls.InsertListed(s.ctx, "user", "a", []byte(`{"id":"a"}`), "users"))
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.Equal(int64(1), rec.Version)
		listed, err := ix.Contains(s.ctx, "users", "a")
		s.Require().NoError(err)
		s.True(listed)
	})

	s.Run("second insert conflicts and changes nothing", func() {
		err := ls.InsertListed(s.ctx, "user", "a", []byte(`{"id":"a","v":2}`), "users")
		s.ErrorIs(err, apperrors.ErrConflict)
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.JSONEq(`{"id":"a"}`, string(rec.Data))
	})

	s.Run("put overwrites and lists once", func() {
		s.Require().NoError(ls.PutListed(s.ctx, "user", "a", []byte(`{"id":"a","v":3}`), "users"))
		s.Require().NoError(ls.PutListed(s.ctx, "user", "b", []byte(`{"id":"b"}`), "users"))
		rec, err := rs.Get(s.ctx, "user", "a")
		s.Require().NoError(err)
		s.Equal(int64(2), rec.Version)
		page, err := ix.Page(s.ctx, "users", "", 10)
		s.Require().NoError(err)
		s.Equal([]string{"a", "b"}, page.IDs)
	})

	s.Run("delete unlists and removes", func() {
		existed, err := ls.DeleteListed(s.ctx, "user", "a", "users")
		s.Require().NoError(err)
		s.True(existed)
		_, err = rs.Get(s.ctx, "user", "a")
		s.ErrorIs(err, apperrors.ErrNotFound)
		listed, err := ix.Contains(s.ctx, "users", "a")
		s.Require().NoError(err)
		s.False(listed)

		existed, err = ls.DeleteListed(s.ctx, "user", "a", "users")
		s.Require().NoError(err)
		s.False(existed)
	})
}

// Writers and deleters race on one id; afterwards the id is listed exactly
// when its record exists.
func (s *BackendSuite) TestListingRacesKeepIndexAndRecordsAligned() {
	ls, rs, ix := s.backend.Listing, s.backend.Records, s.backend.Index
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := []byte(fmt.Sprintf(`{"id":"x","n":%d}`, i))
			switch i % 3 {
			case 0:
				_ = ls.InsertListed(s.ctx, "user", "x", body, "users")
			case 1:
				_ = ls.PutListed(s.ctx, "user", "x", body, "users")
			default:
				_, _ = ls.DeleteListed(s.ctx, "user", "x", "users")
			}
		}(i)
	}
	wg.Wait()

	_, err := rs.Get(s.ctx, "user", "x")
	exists := err == nil
	if !exists {
		s.ErrorIs(err, apperrors.ErrNotFound)
	}
	listed, err := ix.Contains(s.ctx, "users", "x")
	s.Require().NoError(err)
	s.Equal(exists, listed)
}
