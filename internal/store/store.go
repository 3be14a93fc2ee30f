// Package store owns the persistence glue. Entity storage itself belongs to
// GORM; this layer only opens the database, runs migrations and maps the
// driver's not-found condition onto the protocol error vocabulary.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sockrest/internal/errors"
)

// Open connects to the sqlite database at dsn and migrates the given models.
func Open(dsn string, logger *slog.Logger, models ...any) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if logger != nil {
		logger.Info("database ready",
			slog.String("dsn", dsn),
			slog.Int("models", len(models)))
	}
	return db, nil
}

// Repository is a generic GORM-backed repository keyed by an unsigned
// integer primary key. It is the Go stand-in for a queryset: a handle on
// one entity's collection.
type Repository[T any] struct {
	db *gorm.DB
}

// NewRepository creates a repository bound to db.
func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

// Create persists a new entity and backfills its generated primary key.
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

// Get loads the entity with the given primary key. A missing row maps to
// errors.ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, pk uint64) (*T, error) {
	var entity T
	err := r.db.WithContext(ctx).First(&entity, pk).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("pk %d: %w", pk, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("get: %w", err)
	}
	return &entity, nil
}

// Save writes back all fields of an already-loaded entity.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Delete removes an already-loaded entity.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Delete(entity).Error; err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// List returns the full collection in primary-key order. An empty table
// yields an empty, non-nil slice.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	entities := make([]T, 0)
	if err := r.db.WithContext(ctx).Order("id").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entities, nil
}

// Exists reports whether a row with the given primary key is present.
func (r *Repository[T]) Exists(ctx context.Context, pk uint64) (bool, error) {
	var entity T
	var count int64
	err := r.db.WithContext(ctx).Model(&entity).Where("id = ?", pk).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return count > 0, nil
}

// Count returns the collection size.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var entity T
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}
