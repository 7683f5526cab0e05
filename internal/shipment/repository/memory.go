package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("shipment not found")
	ErrExists   = errors.New("shipment already exists")
	ErrNoID     = errors.New("shipment payload has no _id")
)

// MemoryRepo keeps shipment records in process. Records go through JSON on
// the way in and out so callers see the same loose shapes a remote backend
// would return.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string][]byte)}
}

func (m *MemoryRepo) Fetch(_ context.Context, id string) (map[string]any, error) {
	m.mu.RLock()
	b, ok := m.store[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(b)
}

func (m *MemoryRepo) Create(_ context.Context, payload map[string]any) (map[string]any, error) {
	id, _ := payload["_id"].(string)
	if id == "" {
		return nil, ErrNoID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec := stamp(payload, now, now)
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	m.store[id] = b
	return decodeRecord(b)
}

func (m *MemoryRepo) Update(_ context.Context, id string, payload map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	old, err := decodeRecord(prev)
	if err != nil {
		return nil, err
	}
	created, _ := old["createdAt"].(string)
	rec := stamp(payload, created, time.Now().UTC().Format(time.RFC3339Nano))
	rec["_id"] = id
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	m.store[id] = b
	return decodeRecord(b)
}

// stamp copies the top level of payload and sets the timestamps.
func stamp(payload map[string]any, created, updated string) map[string]any {
	rec := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		rec[k] = v
	}
	rec["createdAt"] = created
	rec["updatedAt"] = updated
	return rec
}

func decodeRecord(b []byte) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
