package db

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreDocument struct {
	Version   int64     `firestore:"version"`
	Body      []byte    `firestore:"body"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// FirestoreStore keeps each document as a Firestore document in a collection
// of the same name. CompareAndUpdate runs inside a Firestore transaction.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, key)
	}
	return fromSnapshot(snap)
}

func (s *FirestoreStore) Create(ctx context.Context, collection, key string, data []byte) error {
	_, err := s.client.Collection(collection).Doc(key).Create(ctx, firestoreDocument{
		Version:   1,
		Body:      data,
		UpdatedAt: time.Now(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return errors.Wrapf(err, "create %s/%s", collection, key)
}

func (s *FirestoreStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	ref := s.client.Collection(collection).Doc(key)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var current firestoreDocument
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return ErrVersionConflict
		}
		return tx.Set(ref, firestoreDocument{
			Version:   current.Version + 1,
			Body:      data,
			UpdatedAt: time.Now(),
		})
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
		return err
	}
	return errors.Wrapf(err, "update %s/%s", collection, key)
}

func (s *FirestoreStore) List(ctx context.Context, collection string) ([]*Document, error) {
	snaps, err := s.client.Collection(collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	docs := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*Document, error) {
	var fd firestoreDocument
	if err := snap.DataTo(&fd); err != nil {
		return nil, errors.Wrapf(err, "decode %s", snap.Ref.ID)
	}
	return &Document{Key: snap.Ref.ID, Version: fd.Version, Data: fd.Body, UpdatedAt: fd.UpdatedAt}, nil
}
