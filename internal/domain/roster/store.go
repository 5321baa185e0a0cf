package roster

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable means the roster could not be read at all. It is
	// never the same thing as "no match".
	ErrSourceUnavailable = errors.New("roster source unavailable")
	ErrUnknownSnapshot   = errors.New("unknown roster snapshot")
	ErrRowNotFound       = errors.New("roster row not found")
)

// Source returns the raw cell values of a snapshot, one slice per sheet row.
type Source interface {
	Has(snapshot Snapshot) bool
	Rows(ctx context.Context, snapshot Snapshot) ([][]string, error)
}

// Observer receives the latency and result of every source read.
type Observer interface {
	ObserveRosterQuery(snapshot string, d time.Duration, err error)
}

// Store answers column queries over a Source. It keeps no state between
// queries: every call reads the snapshot again.
type Store struct {
	src      Source
	schema   Schema
	observer Observer
}

type StoreOption func(*Store)

func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

func NewStore(src Source, schema Schema, opts ...StoreOption) (*Store, error) {
	if src == nil {
		return nil, errors.New("roster source is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	s := &Store{src: src, schema: schema}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Has reports whether the snapshot is configured.
func (s *Store) Has(snapshot Snapshot) bool {
	return s.src.Has(snapshot)
}

func (s *Store) rows(ctx context.Context, snapshot Snapshot) ([][]string, error) {
	if !s.src.Has(snapshot) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSnapshot, snapshot)
	}
	start := time.Now()
	rows, err := s.src.Rows(ctx, snapshot)
	if s.observer != nil {
		s.observer.ObserveRosterQuery(string(snapshot), time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, snapshot, err)
	}
	return rows, nil
}

func (s *Store) scan(rows [][]string, field Field, pred Predicate, limit int) []Cell {
	var out []Cell
	for i := s.schema.HeaderRows; i < len(rows); i++ {
		v := s.schema.value(rows[i], field)
		if !pred(v) {
			continue
		}
		out = append(out, Cell{Row: i + 1, Value: v})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Find returns the first cell, top to bottom, in field's column matching pred.
func (s *Store) Find(ctx context.Context, snapshot Snapshot, field Field, pred Predicate) (Cell, bool, error) {
	rows, err := s.rows(ctx, snapshot)
	if err != nil {
		return Cell{}, false, err
	}
	cells := s.scan(rows, field, pred, 1)
	if len(cells) == 0 {
		return Cell{}, false, nil
	}
	return cells[0], true, nil
}

// FindAll returns every matching cell in row order.
func (s *Store) FindAll(ctx context.Context, snapshot Snapshot, field Field, pred Predicate) ([]Cell, error) {
	rows, err := s.rows(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	return s.scan(rows, field, pred, 0), nil
}

// FindEntries returns the full records of the matching rows, in row order,
// from a single read of the snapshot. limit caps the result when positive.
func (s *Store) FindEntries(ctx context.Context, snapshot Snapshot, field Field, pred Predicate, limit int) ([]Entry, error) {
	rows, err := s.rows(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	cells := s.scan(rows, field, pred, limit)
	entries := make([]Entry, len(cells))
	for i, c := range cells {
		entries[i] = s.schema.entry(c.Row, rows[c.Row-1])
	}
	return entries, nil
}

// ReadRow re-reads the full record at row.
func (s *Store) ReadRow(ctx context.Context, snapshot Snapshot, row int) (Entry, error) {
	rows, err := s.rows(ctx, snapshot)
	if err != nil {
		return Entry{}, err
	}
	if row <= s.schema.HeaderRows || row > len(rows) {
		return Entry{}, fmt.Errorf("%w: %s row %d", ErrRowNotFound, snapshot, row)
	}
	return s.schema.entry(row, rows[row-1]), nil
}
