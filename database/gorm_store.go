package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRow is one stored entity body.
type RecordRow struct {
	Kind      string `gorm:"primaryKey;size:64"`
	ID        string `gorm:"primaryKey;size:191"`
	Data      []byte `gorm:"not null"`
	Version   int64  `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

func (RecordRow) TableName() string { return "records" }

// IndexEntry is one id listed under an index name. Seq gives the listing order.
type IndexEntry struct {
	Seq      int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"size:64;not null;uniqueIndex:idx_index_entries_name_entity"`
	EntityID string `gorm:"size:191;not null;uniqueIndex:idx_index_entries_name_entity"`
}

func (IndexEntry) TableName() string { return "index_entries" }

// GormStore implements RecordStore and Index on top of a GORM connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// NewGormBackend migrates the schema and returns a Backend over db.
func NewGormBackend(db *gorm.DB) (Backend, error) {
	if err := Migrate(db); err != nil {
		return Backend{}, err
	}
	s := NewGormStore(db)
	return Backend{
		Records: s,
		Index:   s,
		Listing: s,
		Close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}, nil
}

func (s *GormStore) Get(ctx context.Context, kind, id string) (Record, error) {
	var row RecordRow
	err := s.db.WithContext(ctx).Where("kind = ? AND id = ?", kind, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, recordNotFound(kind, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return Record{Data: row.Data, Version: row.Version}, nil
}

func (s *GormStore) GetMany(ctx context.Context, kind string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []RecordRow
	if err := s.db.WithContext(ctx).Where("kind = ? AND id IN ?", kind, ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get many %s: %w", kind, err)
	}
	for _, row := range rows {
		out[row.ID] = Record{Data: row.Data, Version: row.Version}
	}
	return out, nil
}

func (s *GormStore) Put(ctx context.Context, kind, id string, data []byte) error {
	return putRow(s.db.WithContext(ctx), kind, id, data)
}

func (s *GormStore) Insert(ctx context.Context, kind, id string, data []byte) error {
	return insertRow(s.db.WithContext(ctx), kind, id, data)
}

func putRow(db *gorm.DB, kind, id string, data []byte) error {
	row := RecordRow{Kind: kind, ID: id, Data: data, Version: 1, UpdatedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "data"}, Value: data},
			{Column: clause.Column{Name: "updated_at"}, Value: row.UpdatedAt},
			{Column: clause.Column{Name: "version"}, Value: gorm.Expr("records.version + 1")},
		},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func insertRow(db *gorm.DB, kind, id string, data []byte) error {
	row := RecordRow{Kind: kind, ID: id, Data: data, Version: 1, UpdatedAt: time.Now()}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return recordExists(kind, id)
	}
	return nil
}

func (s *GormStore) Swap(ctx context.Context, kind, id string, data []byte, version int64) error {
	res := s.db.WithContext(ctx).Model(&RecordRow{}).
		Where("kind = ? AND id = ? AND version = ?", kind, id, version).
		Updates(map[string]interface{}{
			"data":       data,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("swap %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	// Nothing matched: either the row is gone or its version moved on.
	var count int64
	if err := s.db.WithContext(ctx).Model(&RecordRow{}).
		Where("kind = ? AND id = ?", kind, id).Count(&count).Error; err != nil {
		return fmt.Errorf("swap %s %s: %w", kind, id, err)
	}
	if count == 0 {
		return recordNotFound(kind, id)
	}
	return ErrVersionConflict
}

func (s *GormStore) Delete(ctx context.Context, kind, id string) (bool, error) {
	return deleteRow(s.db.WithContext(ctx), kind, id)
}

func deleteRow(db *gorm.DB, kind, id string) (bool, error) {
	res := db.Where("kind = ? AND id = ?", kind, id).Delete(&RecordRow{})
	if res.Error != nil {
		return false, fmt.Errorf("delete %s %s: %w", kind, id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) Add(ctx context.Context, name, id string) error {
	return addEntry(s.db.WithContext(ctx), name, id)
}

func (s *GormStore) Remove(ctx context.Context, name, id string) error {
	return removeEntry(s.db.WithContext(ctx), name, id)
}

func addEntry(db *gorm.DB, name, id string) error {
	entry := IndexEntry{Name: name, EntityID: id}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return fmt.Errorf("index add %s %s: %w", name, id, err)
	}
	return nil
}

func removeEntry(db *gorm.DB, name, id string) error {
	if err := db.Where("name = ? AND entity_id = ?", name, id).Delete(&IndexEntry{}).Error; err != nil {
		return fmt.Errorf("index remove %s %s: %w", name, id, err)
	}
	return nil
}

// InsertListed writes the record and its index entry in one transaction.
func (s *GormStore) InsertListed(ctx context.Context, kind, id string, data []byte, index string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertRow(tx, kind, id, data); err != nil {
			return err
		}
		return addEntry(tx, index, id)
	})
}

func (s *GormStore) PutListed(ctx context.Context, kind, id string, data []byte, index string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := putRow(tx, kind, id, data); err != nil {
			return err
		}
		return addEntry(tx, index, id)
	})
}

func (s *GormStore) DeleteListed(ctx context.Context, kind, id, index string) (bool, error) {
	var existed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := removeEntry(tx, index, id); err != nil {
			return err
		}
		var err error
		existed, err = deleteRow(tx, kind, id)
		return err
	})
	return existed, err
}

func (s *GormStore) Contains(ctx context.Context, name, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&IndexEntry{}).
		Where("name = ? AND entity_id = ?", name, id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("index contains %s %s: %w", name, id, err)
	}
	return count > 0, nil
}

func (s *GormStore) Page(ctx context.Context, name, cursor string, limit int) (Page, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	limit = normalizeLimit(limit)

	var entries []IndexEntry
	err = s.db.WithContext(ctx).
		Where("name = ? AND seq > ?", name, after).
		Order("seq ASC").
		Limit(limit + 1).
		Find(&entries).Error
	if err != nil {
		return Page{}, fmt.Errorf("index page %s: %w", name, err)
	}

	page := Page{IDs: make([]string, 0, limit)}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	for _, e := range entries {
		page.IDs = append(page.IDs, e.EntityID)
	}
	if hasMore {
		page.Next = formatCursor(entries[len(entries)-1].Seq)
	}
	return page, nil
}
