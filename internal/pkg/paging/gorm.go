package paging

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"
)

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// GormCollection adapts a *gorm.DB query to Collection.
type GormCollection[T any] struct {
	db  *gorm.DB
	key func(T) string
	err error
}

// NewGormCollection wraps db, which should already carry the model and any
// filters. key returns the sort-key string of a record.
func NewGormCollection[T any](db *gorm.DB, key func(T) string) *GormCollection[T] {
	return &GormCollection[T]{db: db.Session(&gorm.Session{}), key: key}
}

// IDKey is a key function for records exposing their primary key.
func IDKey[T interface{ GetID() uint }](item T) string {
	return strconv.FormatUint(uint64(item.GetID()), 10)
}

func (c *GormCollection[T]) derive(fn func(tx *gorm.DB) *gorm.DB) Collection[T] {
	if c.err != nil {
		return c
	}
	return &GormCollection[T]{db: fn(c.db.Session(&gorm.Session{})), key: c.key}
}

func (c *GormCollection[T]) invalidField(field string) Collection[T] {
	return &GormCollection[T]{db: c.db, key: c.key, err: fmt.Errorf("paging: invalid sort field %q", field)}
}

// OrderBy implements Collection.
func (c *GormCollection[T]) OrderBy(field string, desc bool) Collection[T] {
	if !validFieldName.MatchString(field) {
		return c.invalidField(field)
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return c.derive(func(tx *gorm.DB) *gorm.DB { return tx.Order(field + " " + dir) })
}

// After implements Collection.
func (c *GormCollection[T]) After(field, value string) Collection[T] {
	if !validFieldName.MatchString(field) {
		return c.invalidField(field)
	}
	return c.derive(func(tx *gorm.DB) *gorm.DB { return tx.Where(field+" > ?", keyValue(value)) })
}

// Before implements Collection.
func (c *GormCollection[T]) Before(field, value string) Collection[T] {
	if !validFieldName.MatchString(field) {
		return c.invalidField(field)
	}
	return c.derive(func(tx *gorm.DB) *gorm.DB { return tx.Where(field+" < ?", keyValue(value)) })
}

// Fetch implements Collection.
func (c *GormCollection[T]) Fetch(ctx context.Context, limit int) ([]T, error) {
	if c.err != nil {
		return nil, c.err
	}
	var items []T
	if err := c.db.Session(&gorm.Session{}).WithContext(ctx).Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("paging: fetch: %w", err)
	}
	return items, nil
}

// Exists implements Collection.
func (c *GormCollection[T]) Exists(ctx context.Context) (bool, error) {
	items, err := c.Fetch(ctx, 1)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// Key implements Collection.
func (c *GormCollection[T]) Key(item T) string {
	return c.key(item)
}

// keyValue binds integer keys as integers so comparisons stay numeric on
// every dialect.
func keyValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
