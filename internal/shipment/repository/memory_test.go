package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryRepoCreateFetchUpdate(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	id := "64b7f0c2a1b2c3d4e5f60001"

	_, err := r.Fetch(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	created, err := r.Create(ctx, map[string]any{
		"_id":             id,
		"organization":    "64b7f0c2a1b2c3d4e5f60718",
		"shippingDetails": map[string]any{"numberOfContainer": 1},
	})
	require.NoError(t, err)
	require.Equal(t, id, created["_id"])
	require.NotEmpty(t, created["createdAt"])
	require.Equal(t, 1.0, created["shippingDetails"].(map[string]any)["numberOfContainer"])

	_, err = r.Create(ctx, map[string]any{"_id": id})
	require.ErrorIs(t, err, ErrExists)
	_, err = r.Create(ctx, map[string]any{"organization": "x"})
	require.ErrorIs(t, err, ErrNoID)

	updated, err := r.Update(ctx, id, map[string]any{"_id": id, "status": "final"})
	require.NoError(t, err)
	require.Equal(t, created["createdAt"], updated["createdAt"])
	require.Equal(t, "final", updated["status"])
	require.NotContains(t, updated, "shippingDetails", "update replaces the record")

	got, err := r.Fetch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, updated, got)

	_, err = r.Update(ctx, "64b7f0c2a1b2c3d4e5f60999", map[string]any{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMongoValueConversion(t *testing.T) {
	m := &MongoRepo{refs: map[string]struct{}{"_id": {}, "product": {}}}
	doc := m.toBSON(map[string]any{
		"_id":       "64b7f0c2a1b2c3d4e5f60001",
		"createdAt": "ignored",
		"shippingDetails": map[string]any{
			"containers": []any{map[string]any{
				"product":         "64b7f0c2a1b2c3d4e5f60002",
				"containerNumber": "64b7f0c2a1b2c3d4e5f60003",
			}},
		},
	})
	require.NotContains(t, doc, "createdAt")
	require.IsType(t, primitive.ObjectID{}, doc["_id"])

	row := doc["shippingDetails"].(bson.M)["containers"].(bson.A)[0].(bson.M)
	require.Equal(t, "64b7f0c2a1b2c3d4e5f60002", row["product"].(primitive.ObjectID).Hex())
	require.Equal(t, "64b7f0c2a1b2c3d4e5f60003", row["containerNumber"], "only reference fields become ObjectIDs")
}
