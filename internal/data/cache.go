package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SessionCache is the client-side session cache: tokens and the persisted
// identity keys. Both the SQLite and the in-memory variants satisfy
// auth.Cache and session.Cache.
type SessionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// sqliteCache 持久化的 key/value 缓存
type sqliteCache struct {
	db *sql.DB
}

// NewSQLiteCache 创建基于 session_cache 表的缓存
func NewSQLiteCache(db *sql.DB) SessionCache {
	return &sqliteCache{db: db}
}

func (c *sqliteCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM session_cache WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}

func (c *sqliteCache) Put(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO session_cache (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM session_cache WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete cache key %s: %w", key, err)
		}
	}
	return nil
}

// memoryCache 进程内缓存，进程退出即丢失
type memoryCache struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() SessionCache {
	return &memoryCache{m: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memoryCache) Put(_ context.Context, key, value string) error {
	c.mu.Lock()
	c.m[key] = value
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.m, key)
	}
	c.mu.Unlock()
	return nil
}

// OpenSessionCache picks the cache for a configured cache location: "memory"
// or a SQLite file path. The returned close function releases the database.
func OpenSessionCache(location string) (SessionCache, func() error, error) {
	if location == "" || location == "memory" {
		return NewMemoryCache(), func() error { return nil }, nil
	}
	db, err := OpenSQLite(location)
	if err != nil {
		return nil, nil, err
	}
	return NewSQLiteCache(db), db.Close, nil
}
