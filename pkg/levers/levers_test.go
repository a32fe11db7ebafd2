package levers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/token"
)

func TestMemoryBlockPinning(t *testing.T) {
	m := NewMemory(
		Record{TokenID: 7, Block: 100, Values: []int64{0, 5, 1}},
		Record{TokenID: 7, Block: 300, Values: []int64{0, 5, 3}},
		Record{TokenID: 7, Block: 200, Values: []int64{0, 5, 2}},
	)
	ctx := context.Background()

	tests := []struct {
		block int64
		want  int64
	}{
		{token.LatestBlock, 3},
		{100, 1},
		{250, 2},
		{300, 3},
		{1_000_000, 3},
	}
	for _, tt := range tests {
		got, err := m.ControlToken(ctx, 7, tt.block)
		require.NoError(t, err, "block %d", tt.block)
		v, _ := got.Lever(0)
		assert.Equal(t, tt.want, v, "block %d", tt.block)
	}

	_, err := m.ControlToken(ctx, 7, 99)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "before first record")
	_, err = m.ControlToken(ctx, 8, token.LatestBlock)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "unknown token")
}

func TestMemoryPutReplaces(t *testing.T) {
	m := NewMemory(Record{TokenID: 1, Block: 10, Values: []int64{0, 1, 0}})
	m.Put(Record{TokenID: 1, Block: 10, Values: []int64{0, 1, 1}})

	got, err := m.ControlToken(context.Background(), 1, token.LatestBlock)
	require.NoError(t, err)
	assert.Equal(t, token.ControlToken{0, 1, 1}, got)

	// Returned tokens are copies.
	got[2] = 99
	again, _ := m.ControlToken(context.Background(), 1, token.LatestBlock)
	assert.Equal(t, int64(1), again[2])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"token_id": 2, "block": 0, "values": [0, 10, 4, 0, 1, 1]}
	]`), 0o644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	got, err := m.ControlToken(context.Background(), 2, token.LatestBlock)
	require.NoError(t, err)
	v, _ := got.Lever(1)
	assert.Equal(t, int64(1), v)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadFile(path)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPath))
}

func TestChain(t *testing.T) {
	primary := NewMemory(Record{TokenID: 500, Values: []int64{0, 1, 1}})
	legacy := NewMemory(
		Record{TokenID: 12, Values: []int64{0, 1, 0}},
		Record{TokenID: 400, Values: []int64{0, 1, 0}},
	)
	c := NewChain(primary, legacy)
	ctx := context.Background()

	_, err := c.ControlToken(ctx, 500, token.LatestBlock)
	assert.NoError(t, err, "primary hit")

	_, err = c.ControlToken(ctx, 12, token.LatestBlock)
	assert.NoError(t, err, "legacy hit below cut-off")

	_, err = c.ControlToken(ctx, 400, token.LatestBlock)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "legacy not consulted above cut-off")
}

type failingStore struct{ err error }

func (f failingStore) ControlToken(context.Context, int64, int64) (token.ControlToken, error) {
	return nil, f.err
}

func TestChainPropagatesFatalErrors(t *testing.T) {
	boom := errors.New(errors.ErrCodeNetwork, "rpc down")
	c := NewChain(failingStore{boom}, NewMemory(Record{TokenID: 1, Values: []int64{0, 1, 1}}))
	_, err := c.ControlToken(context.Background(), 1, token.LatestBlock)
	assert.True(t, errors.Is(err, errors.ErrCodeNetwork))
}

// fakeCollection answers FindOne from a Memory store and records filters.
type fakeCollection struct {
	mem     *Memory
	filters []bson.D
	fail    error
	upserts []any
}

func (f *fakeCollection) FindOne(ctx context.Context, filter any, _ ...*options.FindOneOptions) *mongo.SingleResult {
	d := filter.(bson.D)
	f.filters = append(f.filters, d)
	if f.fail != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.fail, nil)
	}
	id := d[0].Value.(int64)
	block := token.LatestBlock
	if len(d) > 1 {
		block = d[1].Value.(bson.D)[0].Value.(int64)
	}
	t, err := f.mem.ControlToken(ctx, id, block)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(Record{TokenID: id, Values: t}, nil, nil)
}

func (f *fakeCollection) UpdateOne(_ context.Context, _, update any, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.upserts = append(f.upserts, update)
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func TestMongo(t *testing.T) {
	coll := &fakeCollection{mem: NewMemory(
		Record{TokenID: 3, Block: 50, Values: []int64{0, 2, 2}},
	)}
	m := NewMongo(coll)
	ctx := context.Background()

	got, err := m.ControlToken(ctx, 3, 60)
	require.NoError(t, err)
	assert.Equal(t, token.ControlToken{0, 2, 2}, got)
	assert.Len(t, coll.filters[0], 2, "pinned block adds a $lte clause")

	_, err = m.ControlToken(ctx, 3, token.LatestBlock)
	require.NoError(t, err)
	assert.Len(t, coll.filters[1], 1, "latest reads have no block clause")

	_, err = m.ControlToken(ctx, 4, token.LatestBlock)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	coll.fail = mongo.ErrClientDisconnected
	_, err = m.ControlToken(ctx, 3, token.LatestBlock)
	assert.True(t, errors.Is(err, errors.ErrCodeNetwork))

	require.NoError(t, m.Put(ctx, Record{TokenID: 9, Block: 1, Values: []int64{0, 1, 0}}))
	assert.Len(t, coll.upserts, 1)
}
