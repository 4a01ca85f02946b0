// Package mongo implements the subscription registry for MongoDB.
package mongo

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kore-ledger/kore-gateway/lib/store"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// mongoSubscription is the stored shape of a store.Subscription.
type mongoSubscription struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SubjectID  string             `bson:"subject_id"`
	Consumer   string             `bson:"consumer"`
	RemoteAddr string             `bson:"remote_addr"`
	CreatedAt  time.Time          `bson:"created_at"`
}

// subscription converts a mongoSubscription to store.Subscription type.
func (s mongoSubscription) subscription() store.Subscription {
	return store.Subscription{
		ID:         s.ID[:],
		SubjectID:  s.SubjectID,
		Consumer:   s.Consumer,
		RemoteAddr: s.RemoteAddr,
		CreatedAt:  s.CreatedAt,
	}
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to mongo DB in %s", uri)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, errors.Wrap(err, "error connecting to mongo DB")
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close the database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) col() *mgo.Collection {
	return m.c.Database("gateway").Collection("subscriptions")
}

// AddSubscription records an active subscription. A consumer re-subscribing to the same subject keeps its existing
// record id.
func (m *Mongo) AddSubscription(s store.Subscription) ([]byte, error) {
	var ms mongoSubscription

	filter := bson.M{"subject_id": s.SubjectID, "consumer": s.Consumer}

	err := m.col().FindOne(context.Background(), filter).Decode(&ms)
	if errors.Is(err, mgo.ErrNoDocuments) {
		res, errIns := m.col().InsertOne(context.Background(), bson.M{
			"subject_id":  s.SubjectID,
			"consumer":    s.Consumer,
			"remote_addr": s.RemoteAddr,
			"created_at":  s.CreatedAt,
		})
		if errIns != nil {
			return nil, errors.Wrap(errIns, "could not insert subscription in db")
		}

		return hex.DecodeString(res.InsertedID.(primitive.ObjectID).Hex())
	}

	if err != nil {
		return nil, errors.Wrap(err, "could not insert subscription in db")
	}

	return hex.DecodeString(ms.ID.Hex())
}

// RemoveSubscription deletes the record for the given subject and consumer.
func (m *Mongo) RemoveSubscription(subjectID, consumer string) error {
	filter := bson.M{"subject_id": subjectID, "consumer": consumer}

	res, err := m.col().DeleteOne(context.Background(), filter)
	if err == nil && res.DeletedCount != 1 {
		err = store.ErrSubNotFound
	}

	return err
}

// GetSubscriptions returns all currently recorded subscriptions.
func (m *Mongo) GetSubscriptions() ([]store.Subscription, error) {
	cur, err := m.col().Find(context.Background(), bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "error getting subscriptions from db")
	}
	defer cur.Close(context.Background())

	subs := []store.Subscription{}

	for cur.Next(context.Background()) {
		var ms mongoSubscription
		if err = cur.Decode(&ms); err != nil {
			return nil, errors.Wrap(err, "error decoding subscription from db")
		}
		subs = append(subs, ms.subscription())
	}

	return subs, cur.Err()
}
