package repository

import (
	"context"
	"log/slog"
)

// Stores bundles the repositories behind one backend
type Stores struct {
	Products ProductRepository
	Orders   OrderRepository
	Users    UserRepository
	// Ping is nil for the in-memory backend
	Ping  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

// Open connects to MongoDB, or falls back to the in-memory store when uri is empty
func Open(ctx context.Context, uri, database string) (*Stores, error) {
	if uri == "" {
		slog.Warn("MONGODB_URI not set, using in-memory storage")
		mem := NewMemoryStore()
		return &Stores{
			Products: mem,
			Orders:   NewMemoryOrders(mem),
			Users:    NewMemoryUsers(mem),
			Close:    func(context.Context) error { return nil },
		}, nil
	}

	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	db := client.Database(database)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("connected to MongoDB", "database", database)
	return &Stores{
		Products: NewMongoProducts(db),
		Orders:   NewMongoOrders(db),
		Users:    NewMongoUsers(db),
		Ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
		Close:    client.Disconnect,
	}, nil
}
