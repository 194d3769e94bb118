package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	stateBucket  = "workspace"
	selectionKey = "current_project_id"

	// DefaultStateFile is the bbolt file name under the state directory.
	DefaultStateFile = "workspace.db"
)

// ErrStoreLocked is returned when another process holds the state file.
var ErrStoreLocked = errors.New("workspace: state file is in use by another process")

// Store persists the selected project ID across runs.
type Store interface {
	// LoadSelection returns the saved ID, or "" when none was saved.
	LoadSelection() (string, error)
	// SaveSelection persists id. An empty id clears the selection.
	SaveSelection(id string) error
	Close() error
}

// BoltStore keeps the selection in a bbolt file.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// OpenBoltStore opens or creates the state file at path.
func OpenBoltStore(path string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
		}
		return nil, fmt.Errorf("open state file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state bucket: %w", err)
	}

	logger.Debug("workspace state opened", slog.String("path", path))
	return &BoltStore{db: db, logger: logger}, nil
}

// LoadSelection implements Store.
func (s *BoltStore) LoadSelection() (string, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(stateBucket)).Get([]byte(selectionKey)); v != nil {
			id = string(v)
		}
		return nil
	})
	return id, err
}

// SaveSelection implements Store.
func (s *BoltStore) SaveSelection(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		if id == "" {
			return b.Delete([]byte(selectionKey))
		}
		return b.Put([]byte(selectionKey), []byte(id))
	})
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadSelection implements Store.
func (m *MemoryStore) LoadSelection() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

// SaveSelection implements Store.
func (m *MemoryStore) SaveSelection(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
