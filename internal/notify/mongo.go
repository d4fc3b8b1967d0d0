package notify

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront-backend/internal/domain"
)

// MongoAudit appends delivery records to the notification_deliveries
// collection.
type MongoAudit struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func ConnectMongoAudit(ctx context.Context, uri, database string) (*MongoAudit, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoAudit{client: client, coll: client.Database(database).Collection("notification_deliveries")}, nil
}

func (a *MongoAudit) Record(ctx context.Context, d domain.Delivery) error {
	_, err := a.coll.InsertOne(ctx, d)
	return err
}

func (a *MongoAudit) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
