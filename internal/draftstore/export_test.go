package draftstore

// putRaw stores bytes as they are; tests use it to plant corrupt payloads.
func (m *MemoryStore) putRaw(id string, b []byte) {
	m.mu.Lock()
	m.data[id] = b
	m.mu.Unlock()
}
