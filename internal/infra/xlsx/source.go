// Package xlsx reads roster snapshots from local .xlsx workbooks.
package xlsx

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

// Workbook locates one snapshot. An empty Sheet means the active sheet.
type Workbook struct {
	Path  string
	Sheet string
}

// Source opens the workbook on every read, so edits to the file are picked
// up by the next query.
type Source struct {
	books map[roster.Snapshot]Workbook
}

func NewSource(books map[roster.Snapshot]Workbook) *Source {
	cp := make(map[roster.Snapshot]Workbook, len(books))
	for snap, wb := range books {
		if wb.Path != "" {
			cp[snap] = wb
		}
	}
	return &Source{books: cp}
}

func (s *Source) Has(snapshot roster.Snapshot) bool {
	_, ok := s.books[snapshot]
	return ok
}

func (s *Source) Rows(ctx context.Context, snapshot roster.Snapshot) ([][]string, error) {
	wb, ok := s.books[snapshot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", roster.ErrUnknownSnapshot, snapshot)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(wb.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", wb.Path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := wb.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, wb.Path, err)
	}
	return rows, nil
}
