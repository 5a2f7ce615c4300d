// Package mongo keeps ledger snapshots in a MongoDB collection, one document
// per ledger.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
)

const collectionName = "ledger_snapshots"

// snapshotDocument stores the snapshot as its JSON encoding so decimal
// amounts keep their exact string form.
type snapshotDocument struct {
	LedgerID  string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if database == "" {
		database = "opsledger"
	}
	return &Store{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) LoadSnapshot(ctx context.Context, ledgerID string) (domain.Snapshot, error) {
	var doc snapshotDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": ledgerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Snapshot{}, store.ErrNotFound
		}
		return domain.Snapshot{}, err
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal([]byte(doc.Payload), &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", ledgerID, err)
	}
	return snapshot.Clone(), nil
}

func (s *Store) SaveSnapshot(ctx context.Context, ledgerID string, snapshot domain.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", ledgerID, err)
	}
	_, err = s.collection.UpdateOne(
		ctx,
		bson.M{"_id": ledgerID},
		bson.M{"$set": bson.M{"payload": string(payload), "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}
