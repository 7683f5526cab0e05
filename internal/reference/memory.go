package reference

import (
	"context"
	"strings"
	"sync"

	"github.com/shipdraft/draft-service/internal/shipment"
)

// Memory serves reference entities from maps keyed by hex id.
type Memory struct {
	mu        sync.RWMutex
	products  map[string]shipment.Product
	brokers   map[string]shipment.Broker
	suppliers map[string]shipment.Supplier
}

func NewMemory() *Memory {
	return &Memory{
		products:  map[string]shipment.Product{},
		brokers:   map[string]shipment.Broker{},
		suppliers: map[string]shipment.Supplier{},
	}
}

func (m *Memory) PutProduct(p shipment.Product) {
	m.mu.Lock()
	m.products[p.ID.Hex()] = p
	m.mu.Unlock()
}

func (m *Memory) PutBroker(b shipment.Broker) {
	m.mu.Lock()
	m.brokers[b.ID.Hex()] = b
	m.mu.Unlock()
}

func (m *Memory) PutSupplier(s shipment.Supplier) {
	m.mu.Lock()
	m.suppliers[s.ID.Hex()] = s
	m.mu.Unlock()
}

func (m *Memory) Product(_ context.Context, id string) (*shipment.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[strings.ToLower(id)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) Broker(_ context.Context, id string) (*shipment.Broker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.brokers[strings.ToLower(id)]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *Memory) Supplier(_ context.Context, id string) (*shipment.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.suppliers[strings.ToLower(id)]; ok {
		return &s, nil
	}
	return nil, nil
}
