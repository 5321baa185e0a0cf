// Package sheets reads roster snapshots from Google Sheets.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

const defaultRange = "A:Z"

// Spreadsheet locates one snapshot. Range is in A1 notation and may name a
// sheet ("2023!A:L"); it defaults to the first sheet's A:Z.
type Spreadsheet struct {
	ID    string
	Range string
}

type valuesGetter interface {
	getValues(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
}

type serviceGetter struct {
	srv *gsheets.Service
}

func (g serviceGetter) getValues(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Source reads each snapshot through the Sheets API on every call.
type Source struct {
	getter valuesGetter
	books  map[roster.Snapshot]Spreadsheet
}

// Credentials of a service account. With neither set the client falls back
// to Application Default Credentials.
type Credentials struct {
	File string
	JSON string
}

// NewSource builds a read-only Sheets client.
func NewSource(ctx context.Context, creds Credentials, books map[roster.Snapshot]Spreadsheet) (*Source, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsReadonlyScope)}
	switch {
	case creds.JSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.JSON)))
	case creds.File != "":
		opts = append(opts, option.WithCredentialsFile(creds.File))
	}
	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return newSource(serviceGetter{srv: srv}, books), nil
}

func newSource(getter valuesGetter, books map[roster.Snapshot]Spreadsheet) *Source {
	cp := make(map[roster.Snapshot]Spreadsheet, len(books))
	for snap, b := range books {
		if b.ID == "" {
			continue
		}
		if b.Range == "" {
			b.Range = defaultRange
		}
		cp[snap] = b
	}
	return &Source{getter: getter, books: cp}
}

func (s *Source) Has(snapshot roster.Snapshot) bool {
	_, ok := s.books[snapshot]
	return ok
}

func (s *Source) Rows(ctx context.Context, snapshot roster.Snapshot) ([][]string, error) {
	b, ok := s.books[snapshot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", roster.ErrUnknownSnapshot, snapshot)
	}
	values, err := s.getter.getValues(ctx, b.ID, b.Range)
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s %s: %w", b.ID, b.Range, err)
	}
	// An empty range comes back without values.
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return rows, nil
}
