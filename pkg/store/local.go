package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/spf13/afero"
)

// StateKey is the well-known key the snapshot is stored under.
const StateKey = "bell_manager_state"

// LocalStore persists one serialized snapshot of the state.
type LocalStore interface {
	Load() (models.BellManagerState, error)
	Save(models.BellManagerState) error
}

func decodeSnapshot(raw []byte) (models.BellManagerState, error) {
	var state models.BellManagerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.BellManagerState{}, fmt.Errorf("decode %s: %w", StateKey, err)
	}
	return state, nil
}

// PreferencesStore keeps the snapshot in Fyne preferences.
type PreferencesStore struct {
	prefs fyne.Preferences
}

// NewPreferencesStore creates a store backed by the app's preferences.
func NewPreferencesStore(app fyne.App) *PreferencesStore {
	return &PreferencesStore{prefs: app.Preferences()}
}

func (ps *PreferencesStore) Load() (models.BellManagerState, error) {
	raw := ps.prefs.String(StateKey)
	if raw == "" {
		return models.BellManagerState{}, ErrNoSnapshot
	}
	return decodeSnapshot([]byte(raw))
}

func (ps *PreferencesStore) Save(state models.BellManagerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s: %w", StateKey, err)
	}
	ps.prefs.SetString(StateKey, string(raw))
	return nil
}

// FileStore keeps the snapshot in a JSON file, replaced atomically on save.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a store writing to path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

func (f *FileStore) Load() (models.BellManagerState, error) {
	raw, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.BellManagerState{}, ErrNoSnapshot
	}
	if err != nil {
		return models.BellManagerState{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	return decodeSnapshot(raw)
}

func (f *FileStore) Save(state models.BellManagerState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", StateKey, err)
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// MemoryStore keeps the snapshot in memory. Used for headless runs without
// a data directory and in tests.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

func (m *MemoryStore) Load() (models.BellManagerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return models.BellManagerState{}, ErrNoSnapshot
	}
	return decodeSnapshot(m.raw)
}

func (m *MemoryStore) Save(state models.BellManagerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.raw = raw
	return nil
}
