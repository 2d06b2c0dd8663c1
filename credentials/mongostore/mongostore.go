// Package mongostore resolves credentials from a MongoDB inventory collection.
package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/damianoneill/netpush/credentials"
	"github.com/damianoneill/netpush/plugin"
)

// MongoStore is a CredentialResolver backed by a collection of credentials.Entry documents.
type MongoStore struct {
	Client     *mongo.Client
	Collection *mongo.Collection
	cipher     *credentials.Cipher
}

var _ plugin.CredentialResolver = (*MongoStore)(nil)

// New connects to the MongoDB at uri. Secrets are opened with c unless c is nil.
func New(ctx context.Context, uri, dbName, collName string, c *credentials.Cipher) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}
	m := NewWithCollection(client.Database(dbName).Collection(collName), c)
	m.Client = client
	return m, nil
}

// NewWithCollection delivers a MongoStore over an existing collection.
func NewWithCollection(coll *mongo.Collection, c *credentials.Cipher) *MongoStore {
	return &MongoStore{Collection: coll, cipher: c}
}

func (m *MongoStore) Resolve(ctx context.Context, equipment plugin.EquipmentID, kind plugin.AccessKind) (*plugin.Credential, error) {
	filter := bson.M{"equipment": string(equipment), "kind": string(kind)}
	if kind == plugin.AccessSSH {
		// Entries without a kind are ssh credentials.
		filter = bson.M{"equipment": string(equipment), "kind": bson.M{"$in": bson.A{string(kind), nil}}}
	}

	var e credentials.Entry
	if err := m.Collection.FindOne(ctx, filter).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(plugin.ErrCredentialNotFound, "%s access to %s", kind, equipment)
		}
		return nil, errors.Wrap(err, "MongoDB FindOne failed")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e.Credential(m.cipher)
}

// Save upserts e, keyed by equipment and kind, sealing its secrets with the store cipher.
func (m *MongoStore) Save(ctx context.Context, e credentials.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.Kind = e.AccessKind()
	if m.cipher != nil {
		if err := m.cipher.SealEntry(&e); err != nil {
			return err
		}
	}
	_, err := m.Collection.ReplaceOne(ctx,
		bson.M{"equipment": e.Equipment, "kind": string(e.Kind)},
		e,
		options.Replace().SetUpsert(true))
	return errors.Wrap(err, "MongoDB ReplaceOne failed")
}

// Close disconnects the client opened by New.
func (m *MongoStore) Close(ctx context.Context) error {
	if m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
