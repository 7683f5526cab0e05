package shipment

import (
	"context"
	"fmt"

	"github.com/shipdraft/draft-service/internal/draft"
	"github.com/shopspring/decimal"
)

const (
	pricePlaces  = 2
	weightPlaces = 3
)

// productFields are the container fields filled from the selected product.
var productFields = []string{
	"productCode", "productDescription", "unitOfMeasure", "countryOfOrigin", "hsCode",
	"pricePerUnit", "priceFob", "priceCif", "netWeight", "tareWeight",
}

func round(f float64, places int32) float64 {
	out, _ := decimal.NewFromFloat(f).Round(places).Float64()
	return out
}

func clearing(names ...string) draft.Patch {
	p := draft.Patch{}
	for _, n := range names {
		p[n] = nil
	}
	return p
}

// Derivers returns the shipment's cross-field rules: lookups that denormalize
// the selected broker, product and supplier, and the container formulas.
func Derivers(lookups Lookups) ([]draft.DeriverSpec, error) {
	gross, err := draft.Formula("container-gross-weight", SectionShipping, "containers", "grossWeight",
		fmt.Sprintf("round(netWeight + tareWeight, %d)", weightPlaces), "netWeight", "tareWeight")
	if err != nil {
		return nil, err
	}
	total, err := draft.Formula("container-total-amount", SectionShipping, "containers", "totalAmount",
		fmt.Sprintf("round(quantity * pricePerUnit, %d)", pricePlaces), "quantity", "pricePerUnit")
	if err != nil {
		return nil, err
	}
	return []draft.DeriverSpec{
		brokerCode(lookups),
		productDetails(lookups),
		supplierDetails(lookups),
		gross,
		total,
	}, nil
}

func brokerCode(brokers BrokerLookup) draft.DeriverSpec {
	return draft.DeriverSpec{
		Name:    "broker-code",
		Section: SectionBooking,
		Sources: []string{"customBroker"},
		Async:   true,
		Derive: func(ctx context.Context, in draft.Input) (draft.Patch, error) {
			id, _ := in.Value.(string)
			if !draft.IsReference(id) {
				return clearing("customBrokerCode"), nil
			}
			b, err := brokers.Broker(ctx, id)
			if err != nil {
				return nil, err
			}
			if b == nil || b.Code == "" {
				return clearing("customBrokerCode"), nil
			}
			return draft.Patch{"customBrokerCode": b.Code}, nil
		},
	}
}

func productDetails(products ProductLookup) draft.DeriverSpec {
	return draft.DeriverSpec{
		Name:    "product-details",
		Section: SectionShipping,
		Group:   "containers",
		Sources: []string{"product"},
		Async:   true,
		Derive: func(ctx context.Context, in draft.Input) (draft.Patch, error) {
			id, _ := in.Value.(string)
			if !draft.IsReference(id) {
				return clearing(productFields...), nil
			}
			p, err := products.Product(ctx, id)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return clearing(productFields...), nil
			}
			return draft.Patch{
				"productCode":        p.Code,
				"productDescription": p.Description,
				"unitOfMeasure":      p.UnitOfMeasure,
				"countryOfOrigin":    p.CountryOfOrigin,
				"hsCode":             p.HSCode,
				"pricePerUnit":       round(p.PricePerUnit, pricePlaces),
				"priceFob":           round(p.PriceFob, pricePlaces),
				"priceCif":           round(p.PriceCif, pricePlaces),
				"netWeight":          round(p.NetWeight, weightPlaces),
				"tareWeight":         round(p.TareWeight, weightPlaces),
			}, nil
		},
	}
}

func supplierDetails(suppliers SupplierLookup) draft.DeriverSpec {
	return draft.DeriverSpec{
		Name:    "supplier-details",
		Section: SectionSupplier,
		Group:   "suppliers",
		Sources: []string{"supplierName"},
		Async:   true,
		Derive: func(ctx context.Context, in draft.Input) (draft.Patch, error) {
			id, _ := in.Value.(string)
			if !draft.IsReference(id) {
				return clearing("supplierAddress", "supplierCountry"), nil
			}
			s, err := suppliers.Supplier(ctx, id)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return clearing("supplierAddress", "supplierCountry"), nil
			}
			return draft.Patch{"supplierAddress": s.Address, "supplierCountry": s.Country}, nil
		},
	}
}
