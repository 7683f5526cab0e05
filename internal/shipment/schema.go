package shipment

import "github.com/shipdraft/draft-service/internal/draft"

// Section keys of a shipment document.
const (
	SectionBooking     = "bookingDetails"
	SectionShipping    = "shippingDetails"
	SectionBilling     = "billingDetails"
	SectionSupplier    = "supplierDetails"
	SectionSaleInvoice = "saleInvoiceDetails"
	SectionBL          = "blDetails"
	SectionOther       = "otherDetails"
)

// Record status values.
const (
	StatusDraft = "draft"
	StatusFinal = "final"
)

func str(names ...string) []draft.Field {
	out := make([]draft.Field, len(names))
	for i, n := range names {
		out[i] = draft.Field{Name: n, Kind: draft.KindString}
	}
	return out
}

func of(kind draft.Kind, names ...string) []draft.Field {
	out := make([]draft.Field, len(names))
	for i, n := range names {
		out[i] = draft.Field{Name: n, Kind: kind}
	}
	return out
}

func fields(groups ...[]draft.Field) []draft.Field {
	var out []draft.Field
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Schema describes the shipment document. A fresh value is returned on every
// call so callers can never alias each other's copy.
func Schema() *draft.Schema {
	return &draft.Schema{
		Identity: fields(
			of(draft.KindReference, "_id", "organization"),
			str("createdBy", "status"),
			of(draft.KindDate, "createdAt", "updatedAt"),
		),
		Sections: []draft.Section{
			{
				Name: SectionBooking,
				Fields: fields(
					str("bookingNumber", "portOfLoading", "portOfDischarge", "vesselName", "voyageNumber", "customBrokerCode", "remarks"),
					of(draft.KindDate, "bookingDate"),
					of(draft.KindReference, "forwarderName", "customBroker"),
				),
			},
			{
				Name: SectionShipping,
				Fields: fields(
					str("shippingBillNumber", "remarks"),
					of(draft.KindDate, "shippingBillDate"),
					of(draft.KindReference, "transporterName", "shippingLine"),
				),
				Groups: []draft.Group{{
					Name:       "containers",
					CountField: "numberOfContainer",
					Fields: fields(
						str("containerNumber", "sealNumber", "containerType", "productCode", "productDescription",
							"unitOfMeasure", "countryOfOrigin", "hsCode"),
						of(draft.KindNumber, "quantity", "pricePerUnit", "priceFob", "priceCif",
							"netWeight", "tareWeight", "grossWeight", "totalAmount"),
						of(draft.KindReference, "product"),
					),
				}},
			},
			{
				Name: SectionBilling,
				Fields: fields(
					str("invoiceCurrency", "paymentTerms", "remarks"),
					of(draft.KindReference, "billingParty"),
				),
				Groups: []draft.Group{{
					Name:       "bills",
					CountField: "numberOfBills",
					Fields: fields(
						str("billNumber"),
						of(draft.KindDate, "billDate"),
						of(draft.KindNumber, "amount"),
						of(draft.KindURL, "billDocument"),
					),
				}},
			},
			{
				Name:   SectionSupplier,
				Fields: str("remarks"),
				Groups: []draft.Group{{
					Name:       "suppliers",
					CountField: "numberOfSuppliers",
					Fields: fields(
						str("supplierAddress", "supplierCountry"),
						of(draft.KindReference, "supplierName"),
					),
					Groups: []draft.Group{{
						Name:       "invoices",
						CountField: "numberOfInvoices",
						Fields: fields(
							str("invoiceNumber"),
							of(draft.KindDate, "invoiceDate"),
							of(draft.KindNumber, "invoiceValue"),
							of(draft.KindURL, "invoiceDocument"),
						),
					}},
				}},
			},
			{
				Name: SectionSaleInvoice,
				Fields: fields(
					str("commercialInvoiceNumber", "currency"),
					of(draft.KindDate, "invoiceDate"),
					of(draft.KindNumber, "totalValue"),
					of(draft.KindURL, "invoiceDocument"),
					of(draft.KindReference, "consignee"),
				),
			},
			{
				Name: SectionBL,
				Fields: fields(
					str("remarks"),
					of(draft.KindReference, "shippingLine"),
				),
				Groups: []draft.Group{{
					Name:       "billsOfLading",
					CountField: "numberOfBl",
					Fields: fields(
						str("blNumber"),
						of(draft.KindDate, "blDate"),
						of(draft.KindURL, "blDocument"),
					),
				}},
			},
			{
				Name:   SectionOther,
				Fields: str("remarks"),
				Groups: []draft.Group{{
					Name:       "certificates",
					CountField: "numberOfCertificates",
					Fields: fields(
						str("certificateName", "certificateNumber"),
						of(draft.KindDate, "issueDate"),
						of(draft.KindURL, "certificateDocument"),
					),
				}},
			},
		},
	}
}
