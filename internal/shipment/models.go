package shipment

import "go.mongodb.org/mongo-driver/bson/primitive"

// Product is a catalogue entry whose details are copied into a container row.
type Product struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Organization    primitive.ObjectID `bson:"organization,omitempty" json:"organization,omitempty"`
	Code            string             `bson:"code" json:"code"`
	Description     string             `bson:"description" json:"description"`
	UnitOfMeasure   string             `bson:"unitOfMeasure" json:"unitOfMeasure"`
	CountryOfOrigin string             `bson:"countryOfOrigin" json:"countryOfOrigin"`
	HSCode          string             `bson:"hsCode" json:"hsCode"`
	PricePerUnit    float64            `bson:"pricePerUnit" json:"pricePerUnit"`
	PriceFob        float64            `bson:"priceFob" json:"priceFob"`
	PriceCif        float64            `bson:"priceCif" json:"priceCif"`
	NetWeight       float64            `bson:"netWeight" json:"netWeight"`
	TareWeight      float64            `bson:"tareWeight" json:"tareWeight"`
}

// Broker is a customs broker.
type Broker struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name string             `bson:"name" json:"name"`
	Code string             `bson:"code" json:"code"`
}

type Supplier struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name    string             `bson:"name" json:"name"`
	Address string             `bson:"address" json:"address"`
	Country string             `bson:"country" json:"country"`
}
