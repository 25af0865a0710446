package source

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"breakout-backtest/internal/types"
)

// Cache stores fetched bar series as JSON files, one per key.
type Cache struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
}

// CacheEntry is the on-disk format.
type CacheEntry struct {
	Key       string      `json:"key"`
	Bars      []types.Bar `json:"bars"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewCache creates the cache directory. A ttl of zero never expires entries.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		dir = filepath.Join("cache", "bars")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

func (c *Cache) Get(key string) ([]types.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return nil, false
	}
	return entry.Bars, true
}

func (c *Cache) Set(key string, bars []types.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(CacheEntry{Key: key, Bars: bars, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}

// CleanupExpired removes entries older than the ttl.
func (c *Cache) CleanupExpired() error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > c.ttl {
			os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", md5.Sum([]byte(key))))
}

// MakeKey joins key parts with "|".
func MakeKey(parts ...string) string {
	return strings.Join(parts, "|")
}
