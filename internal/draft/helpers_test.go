package draft

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	orgID     = "64b7f0c2a1b2c3d4e5f60718"
	recordID  = "64b7f0c2a1b2c3d4e5f60001"
	brokerID  = "64b7f0c2a1b2c3d4e5f60abc"
	productA  = "650000000000000000000001"
	productB  = "650000000000000000000002"
	supplierX = "660000000000000000000009"
)

func testSchema() *Schema {
	return &Schema{
		Identity: []Field{
			{Name: IDField, Kind: KindReference},
			{Name: "organization", Kind: KindReference},
			{Name: "status"},
		},
		Sections: []Section{
			{
				Name: "bookingDetails",
				Fields: []Field{
					{Name: "customBroker", Kind: KindReference},
					{Name: "customBrokerCode"},
					{Name: "bookingDate", Kind: KindDate},
					{Name: "vesselName"},
				},
			},
			{
				Name:   "shippingDetails",
				Fields: []Field{{Name: "transporterName", Kind: KindReference}},
				Groups: []Group{{
					Name:       "containers",
					CountField: "numberOfContainer",
					Fields: []Field{
						{Name: "containerNumber"},
						{Name: "product", Kind: KindReference},
						{Name: "productCode"},
						{Name: "netWeight", Kind: KindNumber},
						{Name: "tareWeight", Kind: KindNumber},
						{Name: "grossWeight", Kind: KindNumber},
					},
				}},
			},
			{
				Name: "supplierDetails",
				Groups: []Group{{
					Name:       "suppliers",
					CountField: "numberOfSuppliers",
					Fields:     []Field{{Name: "supplierName", Kind: KindReference}},
					Groups: []Group{{
						Name:       "invoices",
						CountField: "numberOfInvoices",
						Fields: []Field{
							{Name: "invoiceNumber"},
							{Name: "invoiceValue", Kind: KindNumber},
							{Name: "invoiceDocument", Kind: KindURL},
						},
					}},
				}},
			},
		},
	}
}

func intp(n int) *int { return &n }

// rows returns the entries of the array at path.
func rows(t *testing.T, doc *Document, path string) []any {
	t.Helper()
	v, ok := doc.Get(path)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	require.True(t, ok, "%s is not an array", path)
	return arr
}

func count(t *testing.T, doc *Document, path string) (int, bool) {
	t.Helper()
	v, ok := doc.Get(path)
	if !ok {
		return 0, false
	}
	n, ok := asInt(v)
	require.True(t, ok, "%s is not a count", path)
	return n, true
}

func keyOf(t *testing.T, entry any) string {
	t.Helper()
	m, ok := entry.(map[string]any)
	require.True(t, ok)
	k, _ := m[KeyField].(string)
	require.NotEmpty(t, k)
	return k
}

type recordingSaver struct {
	mu    sync.Mutex
	saves []map[string]any
	done  chan struct{}
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{done: make(chan struct{}, 16)}
}

func (r *recordingSaver) Save(_ context.Context, _ string, tree map[string]any) {
	r.mu.Lock()
	r.saves = append(r.saves, tree)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingSaver) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}
