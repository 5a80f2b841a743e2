package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	db     *mongo.Database
	client *mongo.Client
	once   sync.Once
)

// ConnectDB initializes and returns the MongoDB database connection. Only
// used when the issue store runs on the "mongo" backend.
func ConnectDB(uri, name string) (*mongo.Database, error) {
	var connectErr error
	once.Do(func() {
		if uri == "" {
			connectErr = fmt.Errorf("MONGODB_URI is not set")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			connectErr = fmt.Errorf("connecting to MongoDB: %w", err)
			return
		}
		if err := c.Ping(ctx, readpref.Primary()); err != nil {
			connectErr = fmt.Errorf("pinging MongoDB: %w", err)
			return
		}

		client = c
		db = client.Database(name)
	})

	if connectErr != nil {
		return nil, connectErr
	}
	if db == nil {
		return nil, fmt.Errorf("MongoDB connection was not established")
	}
	return db, nil
}
