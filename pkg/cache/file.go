package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores registry metadata documents on disk so that scanning
// overlapping dependency closures (or re-running an aborted scan) doesn't
// re-fetch the same package JSON. Keys follow the registry client's
// "pypi:<name>" scheme; each entry lives in its own file under a
// two-character shard directory derived from the key hash.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-backed cache rooted at dir, creating the
// directory if needed. The CLI points this at ~/.cache/pkgscan.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// entry is the on-disk envelope around a cached metadata document.
// StaleAt is zero for entries without a TTL.
type entry struct {
	Doc     []byte    `json:"doc"`
	StaleAt time.Time `json:"stale_at"`
}

// Get retrieves a cached document. A corrupt or stale entry is removed and
// reported as a miss, so the registry client falls through to a fresh fetch.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.entryPath(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = os.Remove(path)
		return nil, false, nil
	}
	if !e.StaleAt.IsZero() && time.Now().After(e.StaleAt) {
		_ = os.Remove(path)
		return nil, false, nil
	}

	return e.Doc, true, nil
}

// Set stores a document under key. A ttl of 0 means the entry never goes
// stale; the registry client passes its metadata TTL here.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	e := entry{Doc: data}
	if ttl > 0 {
		e.StaleAt = time.Now().Add(ttl)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	path := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// Delete removes a cached document. Deleting a missing key is not an error.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.entryPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close is a no-op; every operation leaves the directory consistent.
func (c *FileCache) Close() error {
	return nil
}

// entryPath maps a key to its file. The first two hex characters of the
// key hash shard entries across subdirectories, keeping any one directory
// small even after scanning large dependency closures.
func (c *FileCache) entryPath(key string) string {
	sum := Hash([]byte(key))
	return filepath.Join(c.dir, sum[:2], sum[2:]+".json")
}

var _ Cache = (*FileCache)(nil)
