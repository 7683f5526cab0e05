package shipment

import "context"

// Lookups return (nil, nil) when the id is unknown.

type ProductLookup interface {
	Product(ctx context.Context, id string) (*Product, error)
}

type BrokerLookup interface {
	Broker(ctx context.Context, id string) (*Broker, error)
}

type SupplierLookup interface {
	Supplier(ctx context.Context, id string) (*Supplier, error)
}

// Lookups groups the reference collaborators the derivers need.
type Lookups interface {
	ProductLookup
	BrokerLookup
	SupplierLookup
}
