// Package mongodb stores the queue as documents of a MongoDB collection.
package mongodb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/gate"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "offline_queue_kv"

const (
	defaultTimeout    = 5 * time.Second
	healthTimeout     = 2 * time.Second
	disconnectTimeout = 5 * time.Second
)

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	Collection       string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// document keys values by _id so lookups hit the default index.
type document struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBAdapter is a store.KV with one document per key.
type MongoDBAdapter struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    logger.Logger
	gate   *gate.Gate
	now    func() time.Time
}

// NewMongoDBAdapter connects and pings the primary.
func NewMongoDBAdapter(cfg Config, log logger.Logger) (*MongoDBAdapter, error) {
	switch {
	case strings.TrimSpace(cfg.URL) == "":
		return nil, errors.New("mongodb URL is required")
	case strings.TrimSpace(cfg.Database) == "":
		return nil, errors.New("mongodb database is required")
	}
	collection := cmp.Or(strings.TrimSpace(cfg.Collection), DefaultCollection)

	ctx, cancel := context.WithTimeout(context.Background(), positiveOr(cfg.ConnectTimeout))
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Info("mongodb store connected", "database", cfg.Database, "collection", collection)
	coll := client.Database(cfg.Database).Collection(collection)
	return newAdapterWithCollection(client, coll, positiveOr(cfg.OperationTimeout), log), nil
}

func newAdapterWithCollection(client *mongo.Client, coll *mongo.Collection, timeout time.Duration, log logger.Logger) *MongoDBAdapter {
	return &MongoDBAdapter{
		client: client,
		coll:   coll,
		log:    log,
		gate:   gate.New("mongodb", timeout),
		now:    time.Now,
	}
}

// Ping checks the primary is reachable.
func (a *MongoDBAdapter) Ping(ctx context.Context) error {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *MongoDBAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()

	var doc document
	switch err := a.coll.FindOne(ctx, byID(key)).Decode(&doc); {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("mongodb get %s: %w", key, err)
	}
	return doc.Value, true, nil
}

// Set replaces the whole document, inserting it when missing.
func (a *MongoDBAdapter) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if value == nil {
		value = []byte{}
	}
	doc := document{Key: key, Value: value, UpdatedAt: a.now().UTC()}
	if _, err := a.coll.ReplaceOne(ctx, byID(key), doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongodb set %s: %w", key, err)
	}
	return nil
}

func (a *MongoDBAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		a.log.Warn("mongodb store unhealthy", "error", err)
		return fmt.Errorf("mongodb health check: %w", err)
	}
	return nil
}

// Close disconnects once; later calls return nil.
func (a *MongoDBAdapter) Close() error {
	if !a.gate.Shut() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

func positiveOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

func byID(key string) bson.D {
	return bson.D{{Key: "_id", Value: key}}
}
