// Package storememory is an in-memory RecordStore used by tests and the dev
// server. It reproduces the conditional-write and grouped-write semantics of
// the DynamoDB implementation, including per-item cancellation reasons.
package storememory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/userplane/userplane/pkg/store"
)

const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonNone                   = "None"
)

// Store is a mutex-guarded single-table store.
type Store struct {
	mu    sync.Mutex
	items map[string]map[string]store.Record // pk -> sk -> record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string]map[string]store.Record)}
}

var _ store.RecordStore = (*Store)(nil)

// PutIfAbsent writes the record unless the condition rejects it.
func (s *Store) PutIfAbsent(ctx context.Context, rec store.Record, cond store.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cond != store.ConditionNone && s.exists(rec.PK, rec.SK) {
		return store.ErrAlreadyExists().
			WithDetail("pk", rec.PK).
			WithDetail("sk", rec.SK)
	}
	s.put(rec)
	return nil
}

// GetByKey reads one record; absence returns (nil, nil).
func (s *Store) GetByKey(ctx context.Context, pk, sk string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.items[pk]
	if !ok {
		return nil, nil
	}
	rec, ok := row[sk]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

// Query returns the partition's records ordered by sort key ascending.
func (s *Store) Query(ctx context.Context, pk, skPrefix string) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Record
	for sk, rec := range s.items[pk] {
		if skPrefix != "" && !strings.HasPrefix(sk, skPrefix) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SK < out[j].SK })
	return out, nil
}

// QueryIndex scans for records whose index keys match, ordered by index sort
// key ascending.
func (s *Store) QueryIndex(ctx context.Context, index, pk, skPrefix string) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Record
	for _, row := range s.items {
		for _, rec := range row {
			ipk, isk := indexKeys(rec, index)
			if ipk != pk || ipk == "" {
				continue
			}
			if skPrefix != "" && !strings.HasPrefix(isk, skPrefix) {
				continue
			}
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		_, a := indexKeys(out[i], index)
		_, b := indexKeys(out[j], index)
		return a < b
	})
	return out, nil
}

// TransactWrite applies all puts or none. Any failed condition aborts the
// whole batch with per-item reasons.
func (s *Store) TransactWrite(ctx context.Context, puts []store.TransactPut) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make([]store.AbortReason, len(puts))
	failed := false
	for i, p := range puts {
		reasons[i] = store.AbortReason{Index: i, Code: reasonNone}
		if p.Condition != store.ConditionNone && s.exists(p.Record.PK, p.Record.SK) {
			reasons[i] = store.AbortReason{
				Index:     i,
				Predicate: true,
				Code:      reasonConditionalCheckFailed,
				Message:   "record already exists",
			}
			failed = true
		}
	}
	if failed {
		return &store.AbortedError{Reasons: reasons}
	}

	for _, p := range puts {
		s.put(p.Record)
	}
	return nil
}

func (s *Store) exists(pk, sk string) bool {
	row, ok := s.items[pk]
	if !ok {
		return false
	}
	_, ok = row[sk]
	return ok
}

func (s *Store) put(rec store.Record) {
	row, ok := s.items[rec.PK]
	if !ok {
		row = make(map[string]store.Record)
		s.items[rec.PK] = row
	}
	row[rec.SK] = cloneRecord(rec)
}

func indexKeys(rec store.Record, index string) (string, string) {
	switch index {
	case store.IndexEmail:
		return rec.GSI1PK, rec.GSI1SK
	case store.IndexSubject:
		return rec.GSI2PK, rec.GSI2SK
	case store.IndexTenant:
		return rec.GSI3PK, rec.GSI3SK
	default:
		return "", ""
	}
}

func cloneRecord(rec store.Record) store.Record {
	out := rec
	if rec.Attributes != nil {
		out.Attributes = make(map[string]interface{}, len(rec.Attributes))
		for k, v := range rec.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
