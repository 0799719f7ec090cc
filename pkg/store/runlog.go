package store

import (
	"sync"

	"github.com/albarqi19/alraed-sub006/pkg/models"
)

// RunLog is the bounded, newest-first playback log.
type RunLog struct {
	mu      sync.RWMutex
	entries []models.RuntimeLogEntry
	max     int
}

func NewRunLog(max int) *RunLog {
	return &RunLog{max: max}
}

// Append puts e at the front and evicts the oldest entries over the cap.
func (l *RunLog) Append(e models.RuntimeLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]models.RuntimeLogEntry{e}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
}

// Update applies fn to the entry with id. It reports false when the entry
// has already been evicted.
func (l *RunLog) Update(id string, fn func(*models.RuntimeLogEntry)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			fn(&l.entries[i])
			return true
		}
	}
	return false
}

// Entries returns a copy, newest first.
func (l *RunLog) Entries() []models.RuntimeLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.RuntimeLogEntry{}, l.entries...)
}
