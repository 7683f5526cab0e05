package draftstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultPrefix namespaces draft keys: "shipment-draft:<id>".
const DefaultPrefix = "shipment-draft:"

const savedAtSuffix = ":savedAt"

// Store keeps the autosaved copy of each open draft.
//
// Save never fails from the caller's point of view: losing an autosave is
// logged and counted. Load treats absent and corrupt payloads alike and
// returns nil.
type Store interface {
	Save(ctx context.Context, id string, tree map[string]any)
	Load(ctx context.Context, id string) map[string]any
	Clear(ctx context.Context, id string) error
	SavedAt(ctx context.Context, id string) (time.Time, bool)
}

func encode(id string, tree map[string]any) ([]byte, bool) {
	b, err := json.Marshal(tree)
	if err != nil {
		saveFailed(id, err)
		return nil, false
	}
	return b, true
}

// decode returns nil for anything that is not a JSON object.
func decode(id string, b []byte) map[string]any {
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil || tree == nil {
		logger.WithFields(logrus.Fields{"draft": id}).Warn("discarding corrupt local draft")
		metrics.DraftCacheMisses.WithLabelValues("corrupt").Inc()
		return nil
	}
	return tree
}

func saveFailed(id string, err error) {
	logger.WithFields(logrus.Fields{"draft": id}).Warnf("autosave failed: %v", err)
	metrics.AutosaveWrites.WithLabelValues("error").Inc()
}

// MemoryStore is an in-process Store for tests and single-node development.
// Values go through JSON like the Redis store so both hand back the same shapes.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	savedAt map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}, savedAt: map[string]time.Time{}}
}

func (m *MemoryStore) Save(_ context.Context, id string, tree map[string]any) {
	b, ok := encode(id, tree)
	if !ok {
		return
	}
	m.mu.Lock()
	m.data[id] = b
	m.savedAt[id] = time.Now().UTC()
	m.mu.Unlock()
	metrics.AutosaveWrites.WithLabelValues("ok").Inc()
}

func (m *MemoryStore) Load(_ context.Context, id string) map[string]any {
	m.mu.RLock()
	b, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		metrics.DraftCacheMisses.WithLabelValues("absent").Inc()
		return nil
	}
	return decode(id, b)
}

func (m *MemoryStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	delete(m.savedAt, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SavedAt(_ context.Context, id string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.savedAt[id]
	return t, ok
}
