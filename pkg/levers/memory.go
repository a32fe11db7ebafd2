package levers

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/token"
)

// Memory is an in-memory lever store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[int64][]Record // sorted by block
}

// NewMemory returns a store holding records.
func NewMemory(records ...Record) *Memory {
	m := &Memory{records: make(map[int64][]Record)}
	for _, r := range records {
		m.Put(r)
	}
	return m
}

// LoadFile reads a JSON array of records.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read levers file")
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse levers file %s", path)
	}
	return NewMemory(records...), nil
}

// Put adds or replaces the record for (TokenID, Block).
func (m *Memory) Put(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.records[r.TokenID]
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Block >= r.Block })
	if i < len(rs) && rs[i].Block == r.Block {
		rs[i] = r
		return
	}
	rs = append(rs, Record{})
	copy(rs[i+1:], rs[i:])
	rs[i] = r
	m.records[r.TokenID] = rs
}

// ControlToken implements [token.LeverStore].
func (m *Memory) ControlToken(_ context.Context, tokenID, block int64) (token.ControlToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs := m.records[tokenID]
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].visible(block) {
			return rs[i].Token(), nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "token %d has no lever values at block %d", tokenID, block)
}

var _ token.LeverStore = (*Memory)(nil)
