// Package levers implements the lever stores that supply control tokens to
// a render.
//
// A control token is versioned by block height: each [Record] holds the
// lever values a token had from that block on. A read at block b returns
// the newest record at or before b; a read at [token.LatestBlock] returns
// the newest record overall.
//
//   - [Memory]: records held in memory, loaded from a JSON file
//   - [Mongo]: records in a MongoDB collection
//   - [Chain]: a primary store with a legacy store for early token ids
//
// All stores report unknown tokens with [errors.ErrCodeNotFound], which the
// token context turns into a fallback lookup.
package levers

import "github.com/matzehuels/strata/pkg/token"

// Record is one version of a control token.
type Record struct {
	TokenID int64   `json:"token_id" bson:"token_id"`
	Block   int64   `json:"block" bson:"block"`
	Values  []int64 `json:"values" bson:"values"`
}

// Token returns the record's values as a control token.
func (r Record) Token() token.ControlToken {
	return token.ControlToken(append([]int64(nil), r.Values...))
}

// visible reports whether a record is readable at block.
func (r Record) visible(block int64) bool {
	return block < 0 || r.Block <= block
}
