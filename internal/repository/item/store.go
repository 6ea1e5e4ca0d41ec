package item

import (
	"context"
	"fmt"
	"sync"

	"github.com/retreivo/itemmatch/internal/domain"
	domitem "github.com/retreivo/itemmatch/internal/domain/item"
)

// collection is one append-only sequence of records.
type collection struct {
	mu      sync.RWMutex
	records []domitem.Record
}

// Store holds the lost and found collections in memory for the lifetime of the process.
// Inserts take the collection's write lock; scans copy the slice header under the read lock,
// so readers never observe a partially appended record.
type Store struct {
	lost  collection
	found collection

	seqMu sync.Mutex
	seq   uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) collection(t domitem.ReportType) (*collection, error) {
	switch t {
	case domitem.Lost:
		return &s.lost, nil
	case domitem.Found:
		return &s.found, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidReportType, t)
	}
}

func (s *Store) nextSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// Insert appends rec to the collection of its report type and returns the stored copy
// carrying its insertion sequence number. Duplicate ids are accepted.
func (s *Store) Insert(_ context.Context, rec domitem.Record) (domitem.Record, error) {
	c, err := s.collection(rec.Type())
	if err != nil {
		return domitem.Record{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stored := rec.WithSeq(s.nextSeq())
	c.records = append(c.records, stored)
	return stored, nil
}

// All returns the collection for t in insertion order. The returned slice must be treated as
// read-only; later inserts do not affect it.
func (s *Store) All(_ context.Context, t domitem.ReportType) ([]domitem.Record, error) {
	c, err := s.collection(t)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	// Records are never mutated, so sharing the backing array up to len is safe:
	// appends beyond len never write into indices a reader can see.
	return c.records[:len(c.records):len(c.records)], nil
}

// Count returns the number of records of type t.
func (s *Store) Count(_ context.Context, t domitem.ReportType) (int, error) {
	c, err := s.collection(t)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}
