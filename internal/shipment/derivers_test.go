package shipment_test

import (
	"context"
	"testing"

	"github.com/shipdraft/draft-service/internal/draft"
	"github.com/shipdraft/draft-service/internal/reference"
	"github.com/shipdraft/draft-service/internal/shipment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func openEditor(t *testing.T, lookups shipment.Lookups) *draft.Editor {
	t.Helper()
	specs, err := shipment.Derivers(lookups)
	require.NoError(t, err)
	schema := shipment.Schema()
	doc := draft.Normalizer{Schema: schema}.Normalize(nil)
	e := draft.NewEditor(primitive.NewObjectID().Hex(), doc, draft.Options{Schema: schema, Derivers: specs})
	require.NoError(t, e.Start())
	t.Cleanup(func() { e.Close(context.Background(), true) })
	return e
}

func TestProductSelectionFillsContainer(t *testing.T) {
	refs := reference.NewMemory()
	pid := primitive.NewObjectID()
	refs.PutProduct(shipment.Product{
		ID: pid, Code: "RICE-5", Description: "Basmati rice", UnitOfMeasure: "KG",
		CountryOfOrigin: "IN", HSCode: "1006.30", PricePerUnit: 1.2345,
		PriceFob: 1100, PriceCif: 1175.499, NetWeight: 20000.12345, TareWeight: 2200,
	})
	e := openEditor(t, refs)
	shipping, err := e.Section(shipment.SectionShipping)
	require.NoError(t, err)

	require.NoError(t, shipping.Set("numberOfContainer", 1))
	require.NoError(t, shipping.Set("containers[0].quantity", 1000))
	require.NoError(t, shipping.Set("containers[0].product", pid.Hex()))
	e.Wait()

	rows, err := shipping.Entries("containers")
	require.NoError(t, err)
	c := rows[0]
	assert.Equal(t, "RICE-5", c["productCode"])
	assert.Equal(t, "1006.30", c["hsCode"])
	assert.Equal(t, 1.23, c["pricePerUnit"])
	assert.Equal(t, 1175.5, c["priceCif"])
	assert.Equal(t, 20000.123, c["netWeight"])
	assert.Equal(t, 22200.123, c["grossWeight"])
	assert.Equal(t, 1230.0, c["totalAmount"])
}

func TestUnknownProductClearsDetails(t *testing.T) {
	refs := reference.NewMemory()
	pid := primitive.NewObjectID()
	refs.PutProduct(shipment.Product{ID: pid, Code: "RICE-5", NetWeight: 10, TareWeight: 1})
	e := openEditor(t, refs)
	shipping, err := e.Section(shipment.SectionShipping)
	require.NoError(t, err)

	_, err = shipping.AppendEntry("containers")
	require.NoError(t, err)
	require.NoError(t, shipping.Set("containers[0].product", pid.Hex()))
	e.Wait()
	v, _ := shipping.Get("containers[0].grossWeight")
	assert.Equal(t, 11.0, v)

	require.NoError(t, shipping.Set("containers[0].product", primitive.NewObjectID().Hex()))
	e.Wait()
	rows, _ := shipping.Entries("containers")
	assert.NotContains(t, rows[0], "productCode")
	assert.NotContains(t, rows[0], "netWeight")
	assert.NotContains(t, rows[0], "grossWeight")
}

func TestBrokerAndSupplierDerivers(t *testing.T) {
	refs := reference.NewMemory()
	bid, sid := primitive.NewObjectID(), primitive.NewObjectID()
	refs.PutBroker(shipment.Broker{ID: bid, Name: "Acme Customs", Code: "ACM-01"})
	refs.PutSupplier(shipment.Supplier{ID: sid, Name: "Mills", Address: "12 Dock Rd", Country: "IN"})
	e := openEditor(t, refs)

	booking, err := e.Section(shipment.SectionBooking)
	require.NoError(t, err)
	require.NoError(t, booking.Set("customBroker", bid.Hex()))

	suppliers, err := e.Section(shipment.SectionSupplier)
	require.NoError(t, err)
	require.NoError(t, suppliers.Set("numberOfSuppliers", 2))
	require.NoError(t, suppliers.Set("suppliers[1].supplierName", sid.Hex()))
	e.Wait()

	code, _ := booking.Get("customBrokerCode")
	assert.Equal(t, "ACM-01", code)
	rows, _ := suppliers.Entries("suppliers")
	assert.Equal(t, "12 Dock Rd", rows[1]["supplierAddress"])
	assert.Equal(t, "IN", rows[1]["supplierCountry"])
	assert.NotContains(t, rows[0], "supplierAddress")

	require.NoError(t, booking.Set("customBroker", "not-an-id"))
	e.Wait()
	_, ok := booking.Get("customBrokerCode")
	assert.False(t, ok)
}

func TestSchemaShape(t *testing.T) {
	s := shipment.Schema()
	require.Len(t, s.Sections, 7)
	sec, ok := s.Section(shipment.SectionSupplier)
	require.True(t, ok)
	inv, ok := sec.Group("suppliers", "invoices")
	require.True(t, ok)
	assert.Equal(t, "numberOfInvoices", inv.CountField)

	refs := s.ReferenceKeys()
	for _, k := range []string{"_id", "organization", "transporterName", "customBroker", "product", "supplierName", "consignee"} {
		assert.Contains(t, refs, k)
	}
	assert.NotContains(t, refs, "customBrokerCode")
}
