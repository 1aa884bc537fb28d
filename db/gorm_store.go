package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredDocument is the row layout of the documents table.
type StoredDocument struct {
	Collection string `gorm:"primaryKey;size:64"`
	Key        string `gorm:"column:doc_key;primaryKey;size:128"`
	Version    int64  `gorm:"not null"`
	Body       []byte `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (StoredDocument) TableName() string {
	return "documents"
}

// GormStore keeps documents in postgres through gorm.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *GormDB) *GormStore {
	return &GormStore{db.DB}
}

func (s *GormStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	var row StoredDocument
	err := s.DB.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, key)
	}
	return &Document{Key: row.Key, Version: row.Version, Data: row.Body, UpdatedAt: row.UpdatedAt}, nil
}

func (s *GormStore) Create(ctx context.Context, collection, key string, data []byte) error {
	row := StoredDocument{Collection: collection, Key: key, Version: 1, Body: data}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "create %s/%s", collection, key)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *GormStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	res := s.DB.WithContext(ctx).Model(&StoredDocument{}).
		Where("collection = ? AND doc_key = ? AND version = ?", collection, key, expectedVersion).
		Updates(map[string]interface{}{
			"body":       data,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update %s/%s", collection, key)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, collection, key); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *GormStore) List(ctx context.Context, collection string) ([]*Document, error) {
	var rows []StoredDocument
	if err := s.DB.WithContext(ctx).Where("collection = ?", collection).Order("doc_key").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, &Document{Key: row.Key, Version: row.Version, Data: row.Body, UpdatedAt: row.UpdatedAt})
	}
	return docs, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
