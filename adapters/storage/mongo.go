package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// historyKey is the single well-known key the conversation collection
// lives under. The whole collection is one document: every save
// replaces it atomically, so a surviving entry can never be partially
// written.
const historyKey = "conversations"

// MongoStore persists the history blob as a single MongoDB document.
type MongoStore struct {
	collection *mongo.Collection
	maxBytes   int
	logger     *zap.Logger
}

// MongoConfig configures the MongoDB-backed blob store.
type MongoConfig struct {
	URI      string
	Database string
	// MaxBytes bounds the serialized blob; zero falls back to 1MiB.
	MaxBytes int
}

// NewMongoStore connects to MongoDB and returns the blob store.
func NewMongoStore(cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	uri := cfg.URI
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = "voicecore"
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 1 << 20
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB history store",
		zap.String("database", dbName),
		zap.Int("max_bytes", maxBytes))

	return &MongoStore{
		collection: client.Database(dbName).Collection("history"),
		maxBytes:   maxBytes,
		logger:     logger,
	}, nil
}

// Load implements repositories.BlobStore.
func (s *MongoStore) Load(ctx context.Context) ([]byte, error) {
	var doc struct {
		Data primitive.Binary `bson:"data"`
	}
	err := s.collection.FindOne(ctx, bson.M{"_id": historyKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load history blob: %w", err)
	}
	return doc.Data.Data, nil
}

// Save implements repositories.BlobStore.
func (s *MongoStore) Save(ctx context.Context, data []byte) error {
	if len(data) > s.maxBytes {
		return repositories.ErrQuotaExceeded
	}

	update := bson.M{
		"$set": bson.M{
			"data":       primitive.Binary{Data: data},
			"updated_at": time.Now(),
		},
	}
	_, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": historyKey},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save history blob: %w", err)
	}
	return nil
}
