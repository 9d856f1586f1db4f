package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidshare/backend/internal/config"
)

// InitFunc prepares a freshly dialed handle, e.g. by creating indexes.
type InitFunc[T any] func(ctx context.Context, conn T) error

const (
	mongoConnectTimeout = 10 * time.Second
	mongoPingTimeout    = 2 * time.Second
)

// DialMongo returns a DialFunc connecting to the MongoDB deployment at uri and
// selecting database name. init, when set, runs once on the new handle.
func DialMongo(uri, name string, init InitFunc[*mongo.Database]) (DialFunc[*mongo.Database], error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: database connection string is empty", config.ErrConfiguration)
	}
	if strings.TrimSpace(name) == "" {
		name = "vidshare"
	}

	return func(ctx context.Context) (*mongo.Database, error) {
		clientOptions := options.Client().ApplyURI(uri).
			SetMaxPoolSize(10).
			SetConnectTimeout(5 * time.Second).
			SetSocketTimeout(10 * time.Second)

		connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()

		client, err := mongo.Connect(connectCtx, clientOptions)
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}

		pingCtx, cancelPing := context.WithTimeout(ctx, mongoPingTimeout)
		defer cancelPing()
		if err := client.Ping(pingCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongodb: %w", err)
		}

		database := client.Database(name)
		if init != nil {
			if err := init(connectCtx, database); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, fmt.Errorf("initialise mongodb: %w", err)
			}
		}

		slog.Default().Info("connected to mongodb", "database", name)
		return database, nil
	}, nil
}

// CloseMongo disconnects the client behind database.
func CloseMongo(ctx context.Context, database *mongo.Database) error {
	if database == nil {
		return nil
	}
	return database.Client().Disconnect(ctx)
}
