package memory

import (
	"context"
	"fmt"
	"sync"

	"voxafi/internal/sheets"
)

// Ledger keeps appended rows in memory. Used for local runs without Google
// credentials and in tests.
type Ledger struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

func New() *Ledger {
	return &Ledger{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (l *Ledger) AppendRow(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.TransactionID == "" {
		return "", fmt.Errorf("%w: missing transaction id", sheets.ErrInvalidRow)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Rows returns a copy of every appended row.
func (l *Ledger) Rows() []sheets.LedgerRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerRow(nil), l.rows...)
}

// ReadRows returns the rows whose date falls in year.
func (l *Ledger) ReadRows(_ context.Context, year int) ([]sheets.LedgerRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []sheets.LedgerRow
	for _, row := range l.rows {
		if row.Date.Year() == year {
			out = append(out, row)
		}
	}
	return out, nil
}
