package levers

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/token"
)

// Collection is the subset of *mongo.Collection used by [Mongo].
type Collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// DefaultCollection is the collection name used by [DialMongo].
const DefaultCollection = "control_tokens"

// Mongo reads control tokens from a MongoDB collection of [Record]
// documents. An index on {token_id: 1, block: -1} serves every query.
type Mongo struct {
	coll    Collection
	timeout time.Duration
}

// NewMongo wraps a collection.
func NewMongo(coll Collection) *Mongo {
	return &Mongo{coll: coll, timeout: 10 * time.Second}
}

// DialMongo connects to uri and returns a store over db.control_tokens
// along with the client, which the caller disconnects.
func DialMongo(ctx context.Context, uri, db string) (*Mongo, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, errors.Wrap(errors.ErrCodeNetwork, err, "ping mongo")
	}
	return NewMongo(client.Database(db).Collection(DefaultCollection)), client, nil
}

func (m *Mongo) filter(tokenID, block int64) bson.D {
	f := bson.D{{Key: "token_id", Value: tokenID}}
	if block >= 0 {
		f = append(f, bson.E{Key: "block", Value: bson.D{{Key: "$lte", Value: block}}})
	}
	return f
}

// ControlToken implements [token.LeverStore].
func (m *Mongo) ControlToken(ctx context.Context, tokenID, block int64) (token.ControlToken, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "block", Value: -1}})
	var rec Record
	err := m.coll.FindOne(ctx, m.filter(tokenID, block), opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "token %d has no lever values at block %d", tokenID, block)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "find token %d", tokenID)
	}
	return rec.Token(), nil
}

// Put upserts a record.
func (m *Mongo) Put(ctx context.Context, r Record) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	filter := bson.D{{Key: "token_id", Value: r.TokenID}, {Key: "block", Value: r.Block}}
	update := bson.D{{Key: "$set", Value: r}}
	if _, err := m.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "upsert token %d", r.TokenID)
	}
	return nil
}

var _ token.LeverStore = (*Mongo)(nil)
