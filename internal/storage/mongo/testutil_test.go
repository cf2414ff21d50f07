package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

// setupTestDB starts a single-node replica set and returns a migrated votes collection.
func setupTestDB(t *testing.T) (*mongo.Collection, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err, "failed to start mongodb container")

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, uri)
	require.NoError(t, err)

	db := client.Database("kol_test")
	require.NoError(t, EnsureSchema(ctx, db, DefaultCollection))
	// Second call must be a no-op.
	require.NoError(t, EnsureSchema(ctx, db, DefaultCollection))

	cleanup := func() {
		_ = client.Disconnect(ctx)
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return db.Collection(DefaultCollection), cleanup
}
