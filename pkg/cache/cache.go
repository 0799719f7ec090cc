// Package cache persists downloaded bell sounds on disk.
//
// Every operation absorbs its own failures: a Store never returns errors
// across its API and callers treat a false or empty result as "not cached".
package cache

import "time"

// Metadata is recorded next to each cached blob.
type Metadata struct {
	URL         string
	ContentType string
	CachedAt    time.Time
}

// Entry describes one cached blob.
type Entry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Store is a persistent key/value store for audio blobs keyed by sound id.
type Store interface {
	Put(id string, blob []byte, meta Metadata) bool
	Get(id string) ([]byte, bool)
	Exists(id string) bool
	Delete(id string) bool
	ListAll() []Entry
	DeleteAll() bool
	TotalSize() int64
	// Available reports whether the store is backed by real storage.
	Available() bool
	Close() error
}

// Unavailable is the Store used when no persistent cache can be opened.
// It behaves as a permanently empty cache.
type Unavailable struct{}

func (Unavailable) Put(string, []byte, Metadata) bool { return false }
func (Unavailable) Get(string) ([]byte, bool) { return nil, false }
func (Unavailable) Exists(string) bool { return false }
func (Unavailable) Delete(string) bool { return false }
func (Unavailable) ListAll() []Entry { return []Entry{} }
func (Unavailable) DeleteAll() bool { return false }
func (Unavailable) TotalSize() int64 { return 0 }
func (Unavailable) Available() bool { return false }
func (Unavailable) Close() error { return nil }
