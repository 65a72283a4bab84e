// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// grantRecord is the persisted row for one key-value entry.
type grantRecord struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (grantRecord) TableName() string {
	return "fhe_grants"
}

// DB is a Storage backed by a gorm database, for integrations that want
// decryption grants to survive process restarts.
type DB struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) a sqlite-backed store at path.
func OpenSQLite(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
	}
	return NewDB(db)
}

// NewDB wraps an existing gorm handle, migrating the grant table.
func NewDB(db *gorm.DB) (*DB, error) {
	if err := db.AutoMigrate(&grantRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate grant table: %w", err)
	}
	return &DB{db: db}, nil
}

func (s *DB) Get(ctx context.Context, key string) (string, error) {
	var rec grantRecord
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

func (s *DB) Set(ctx context.Context, key, value string) error {
	// Upsert so racing writers follow last-writer-wins.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&grantRecord{Key: key, Value: value}).Error
}

func (s *DB) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&grantRecord{}, "key = ?", key).Error
}
