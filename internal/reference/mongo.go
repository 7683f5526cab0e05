package reference

import (
	"context"

	"github.com/shipdraft/draft-service/internal/shipment"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Mongo reads reference entities from the "products", "brokers" and
// "suppliers" collections.
type Mongo struct {
	products  *mongo.Collection
	brokers   *mongo.Collection
	suppliers *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		products:  db.Collection("products"),
		brokers:   db.Collection("brokers"),
		suppliers: db.Collection("suppliers"),
	}
}

func findByID[T any](ctx context.Context, col *mongo.Collection, id string) (*T, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var out T
	if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (m *Mongo) Product(ctx context.Context, id string) (*shipment.Product, error) {
	return findByID[shipment.Product](ctx, m.products, id)
}

func (m *Mongo) Broker(ctx context.Context, id string) (*shipment.Broker, error) {
	return findByID[shipment.Broker](ctx, m.brokers, id)
}

func (m *Mongo) Supplier(ctx context.Context, id string) (*shipment.Supplier, error) {
	return findByID[shipment.Supplier](ctx, m.suppliers, id)
}
