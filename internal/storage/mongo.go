package storage

import (
	"context"
	"fmt"
	"time"

	"luminatext/pkg/logger"
	"luminatext/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// transcriptionDocument is the stored shape; the record fields sit at the top
// level next to _id.
type transcriptionDocument struct {
	ID                  primitive.ObjectID `bson:"_id"`
	model.Transcription `bson:",inline"`
}

var historySort = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// New MongoDB store. The connection is verified before returning.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    historySort,
		Options: options.Index().SetName("history_order"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}

	logger.Info("MongoDB connection established",
		zap.String("database", database),
		zap.String("collection", collection))

	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) Insert(ctx context.Context, t *model.Transcription) (string, error) {
	doc := transcriptionDocument{
		ID:            primitive.NewObjectID(),
		Transcription: *t,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to insert transcription: %w", err)
	}

	return doc.ID.Hex(), nil
}

func (s *MongoStore) List(ctx context.Context, skip, limit int64) ([]*model.Transcription, error) {
	opts := options.Find().
		SetSort(historySort).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcriptions: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*model.Transcription, 0, pageCapacity(limit))
	for cursor.Next(ctx) {
		var doc transcriptionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode transcription: %w", err)
		}
		record := doc.Transcription
		record.ID = doc.ID.Hex()
		records = append(records, &record)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcriptions: %w", err)
	}

	return records, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count transcriptions: %w", err)
	}
	return count, nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Malformed ids cannot match any document.
		logger.Debug("Rejected malformed transcription id", zap.String("id", id), zap.Error(err))
		return 0, nil
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, fmt.Errorf("failed to delete transcription: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
