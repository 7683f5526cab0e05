package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores shipment records in the "shipments" collection. Reference
// fields travel as hex strings in payloads and are stored as ObjectIDs.
type MongoRepo struct {
	col  *mongo.Collection
	refs map[string]struct{}
}

func NewMongoRepo(col *mongo.Collection, refs map[string]struct{}) *MongoRepo {
	// drafts are listed per organization, newest first
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "organization", Value: 1}, {Key: "updatedAt", Value: -1}}}
	col.Indexes().CreateOne(context.Background(), idxModel)
	return &MongoRepo{col: col, refs: refs}
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return oid, nil
}

func (m *MongoRepo) Fetch(ctx context.Context, id string) (map[string]any, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var rec bson.M
	if err := m.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (m *MongoRepo) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	id, _ := payload["_id"].(string)
	if id == "" {
		return nil, ErrNoID
	}
	now := time.Now().UTC()
	doc := m.toBSON(payload)
	doc["createdAt"] = now
	doc["updatedAt"] = now
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, id)
		}
		return nil, err
	}
	return m.Fetch(ctx, id)
}

// Update replaces the stored record with payload; fields absent from payload
// are removed. createdAt is kept.
func (m *MongoRepo) Update(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var prev struct {
		CreatedAt time.Time `bson:"createdAt"`
	}
	if err := m.col.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(bson.M{"createdAt": 1})).Decode(&prev); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doc := m.toBSON(payload)
	doc["_id"] = oid
	doc["createdAt"] = prev.CreatedAt
	doc["updatedAt"] = time.Now().UTC()
	res, err := m.col.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return m.Fetch(ctx, id)
}

func (m *MongoRepo) toBSON(payload map[string]any) bson.M {
	out := bson.M{}
	for k, v := range payload {
		if k == "createdAt" || k == "updatedAt" {
			continue
		}
		out[k] = m.value(k, v)
	}
	return out
}

func (m *MongoRepo) value(key string, v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := bson.M{}
		for k, e := range t {
			out[k] = m.value(k, e)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = m.value(key, e)
		}
		return out
	case string:
		if _, ref := m.refs[key]; ref {
			if oid, err := primitive.ObjectIDFromHex(t); err == nil {
				return oid
			}
		}
		return t
	}
	return v
}
