package db

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDocument struct {
	Key       string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Body      []byte    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (md *mongoDocument) toDocument() *Document {
	return &Document{Key: md.Key, Version: md.Version, Data: md.Body, UpdatedAt: md.UpdatedAt}
}

// MongoStore keeps each collection as a MongoDB collection. CompareAndUpdate
// is a single UpdateOne filtered on the expected version.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func ConnectMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}
	log.Printf("mongo: connected to %s in %s", dbName, time.Since(start).Round(time.Millisecond))
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	var md mongoDocument
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&md)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, key)
	}
	return md.toDocument(), nil
}

func (s *MongoStore) Create(ctx context.Context, collection, key string, data []byte) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, mongoDocument{
		Key:       key,
		Version:   1,
		Body:      data,
		UpdatedAt: time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return errors.Wrapf(err, "create %s/%s", collection, key)
}

func (s *MongoStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	col := s.db.Collection(collection)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": key, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"body": data, "updated_at": time.Now()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", collection, key)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := col.CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", collection, key)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *MongoStore) List(ctx context.Context, collection string) ([]*Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	var mds []mongoDocument
	if err := cursor.All(ctx, &mds); err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	docs := make([]*Document, 0, len(mds))
	for i := range mds {
		docs = append(docs, mds[i].toDocument())
	}
	return docs, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
