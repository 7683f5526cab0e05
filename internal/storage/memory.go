package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
}

// Memory is the in-process object store used when MinIO is not configured.
type Memory struct {
	mu        sync.RWMutex
	objects   map[string]object
	publicURL string
}

func NewMemory(publicURL string) *Memory {
	return &Memory{objects: map[string]object{}, publicURL: publicURL}
}

func (m *Memory) Upload(_ context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if size >= 0 {
		reader = io.LimitReader(reader, size)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = object{data: b, contentType: contentType}
	m.mu.Unlock()
	return objectURL(m.publicURL, key), nil
}

func (m *Memory) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.RLock()
	o, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(o.data)), o.contentType, nil
}
