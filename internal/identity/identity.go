// Package identity issues the per-tab session identifier.
package identity

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
)

// StorageKey is the tab storage key holding the session id.
const StorageKey = "analytics_session_id"

// ErrStorageUnavailable is returned by storage that cannot be used.
var ErrStorageUnavailable = errors.New("tab storage unavailable")

// Storage is tab-scoped key/value storage: it survives navigation within a
// tab and is discarded with the tab.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Store resolves the tab's session id.
type Store struct {
	storage Storage
	clock   clockwork.Clock
	log     logger.Logger
}

// NewStore creates a Store. A nil storage behaves like UnavailableStorage.
func NewStore(storage Storage, clk clockwork.Clock, log logger.Logger) *Store {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{storage: storage, clock: clk, log: log}
}

// GetOrCreateSessionID returns the id persisted for this tab, creating and
// persisting one on first use. When storage fails every call yields a
// fresh id; that loses session continuity but is never an error.
func (s *Store) GetOrCreateSessionID() string {
	if s.storage == nil {
		s.log.Debug("Tab storage missing, using ephemeral session id")
		return s.newID()
	}

	id, ok, err := s.storage.Get(StorageKey)
	if err != nil {
		s.log.Debug("Tab storage read failed, using ephemeral session id", logger.Error(err))
		return s.newID()
	}
	if ok && id != "" {
		return id
	}

	id = s.newID()
	if err := s.storage.Set(StorageKey, id); err != nil {
		s.log.Debug("Tab storage write failed, session id not persisted", logger.Error(err))
	}
	return id
}

// newID formats "<unix millis>-<random base36>".
func (s *Store) newID() string {
	return strconv.FormatInt(s.clock.Now().UnixMilli(), 10) + "-" + randomBase36()
}

const suffixLength = 13

func randomBase36() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, suffixLength)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// MemoryStorage is in-process tab storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns empty tab storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// UnavailableStorage fails every operation, like a browser with storage
// disabled.
type UnavailableStorage struct{}

func (UnavailableStorage) Get(string) (string, bool, error) { return "", false, ErrStorageUnavailable }
func (UnavailableStorage) Set(string, string) error         { return ErrStorageUnavailable }
