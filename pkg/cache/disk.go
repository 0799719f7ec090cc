package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/peterbourgon/diskv/v3"

	_ "modernc.org/sqlite"
)

const (
	blobDir   = "blobs"
	indexFile = "index.db"
)

// DiskStore keeps blobs in a diskv tree and their metadata in a sqlite index.
type DiskStore struct {
	mu  sync.Mutex
	d   *diskv.Diskv
	db  *sql.DB
	log logger.Logger
}

// Open returns a DiskStore rooted at dir, or Unavailable when the directory
// or the index cannot be opened.
func Open(dir string, l logger.Logger) Store {
	if l == nil {
		l = logger.NewNopLogger()
	}
	s, err := OpenDisk(dir, l)
	if err != nil {
		l.Warning("[CACHE] persistent audio cache unavailable: %v", err)
		return Unavailable{}
	}
	return s
}

// OpenDisk opens the on-disk store and reports why it could not.
func OpenDisk(dir string, l logger.Logger) (*DiskStore, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if err := os.MkdirAll(filepath.Join(dir, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &DiskStore{
		d: diskv.New(diskv.Options{
			BasePath:          filepath.Join(dir, blobDir),
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			CacheSizeMax:      8 * 1024 * 1024,
		}),
		db:  db,
		log: l,
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
  id TEXT PRIMARY KEY,
  url TEXT NOT NULL DEFAULT '',
  size INTEGER NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  cached_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create cache_entries table: %w", err)
	}
	return nil
}

// keys are hex encoded so any sound id is a safe file name; the first byte
// shards the tree.
func toKey(id string) string {
	return hex.EncodeToString([]byte(id))
}

func fromKey(key string) (string, error) {
	b, err := hex.DecodeString(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func keyToPathTransform(key string) *diskv.PathKey {
	return &diskv.PathKey{
		Path:     []string{key[:2]},
		FileName: key,
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return pathKey.FileName
}

func (s *DiskStore) Put(id string, blob []byte, meta Metadata) bool {
	if id == "" {
		return false
	}
	if meta.CachedAt.IsZero() {
		meta.CachedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.Write(toKey(id), blob); err != nil {
		s.log.Error("[CACHE] write %s: %v", id, err)
		return false
	}
	const stmt = `
INSERT INTO cache_entries (id, url, size, content_type, cached_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  url = excluded.url,
  size = excluded.size,
  content_type = excluded.content_type,
  cached_at = excluded.cached_at;
`
	if _, err := s.db.Exec(stmt, id, meta.URL, len(blob), meta.ContentType, meta.CachedAt.UnixMilli()); err != nil {
		s.log.Error("[CACHE] index %s: %v", id, err)
		_ = s.d.Erase(toKey(id))
		return false
	}
	return true
}

func (s *DiskStore) Get(id string) ([]byte, bool) {
	if id == "" {
		return nil, false
	}
	blob, err := s.d.Read(toKey(id))
	if err != nil {
		return nil, false
	}
	return blob, true
}

func (s *DiskStore) Exists(id string) bool {
	return id != "" && s.d.Has(toKey(id))
}

// Delete removes id and reports whether anything was removed.
func (s *DiskStore) Delete(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := s.d.Has(toKey(id))
	if existed {
		if err := s.d.Erase(toKey(id)); err != nil {
			s.log.Error("[CACHE] erase %s: %v", id, err)
			return false
		}
	}
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE id = ?`, id)
	if err != nil {
		s.log.Error("[CACHE] unindex %s: %v", id, err)
		return existed
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true
	}
	return existed
}

// ListAll returns the indexed entries, newest first. Blobs that exist on
// disk without an index row are reported with their size and no metadata.
func (s *DiskStore) ListAll() []Entry {
	entries := []Entry{}
	indexed := make(map[string]bool)

	rows, err := s.db.Query(`
SELECT id, url, size, content_type, cached_at
FROM cache_entries
ORDER BY cached_at DESC, id ASC;
`)
	if err != nil {
		s.log.Error("[CACHE] list: %v", err)
	} else {
		defer rows.Close()
		for rows.Next() {
			var e Entry
			var cachedAt int64
			if err := rows.Scan(&e.ID, &e.URL, &e.Size, &e.ContentType, &cachedAt); err != nil {
				s.log.Error("[CACHE] scan: %v", err)
				continue
			}
			if !s.d.Has(toKey(e.ID)) {
				continue
			}
			e.CachedAt = time.UnixMilli(cachedAt)
			indexed[e.ID] = true
			entries = append(entries, e)
		}
	}

	done := make(chan struct{})
	defer close(done)
	for key := range s.d.Keys(done) {
		id, err := fromKey(key)
		if err != nil || indexed[id] {
			continue
		}
		blob, err := s.d.Read(key)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{ID: id, Size: int64(len(blob))})
	}
	return entries
}

func (s *DiskStore) DeleteAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.EraseAll(); err != nil {
		s.log.Error("[CACHE] erase all: %v", err)
		return false
	}
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		s.log.Error("[CACHE] clear index: %v", err)
		return false
	}
	return true
}

func (s *DiskStore) TotalSize() int64 {
	var total int64
	for _, e := range s.ListAll() {
		total += e.Size
	}
	return total
}

func (s *DiskStore) Available() bool { return true }

func (s *DiskStore) Close() error {
	return s.db.Close()
}
