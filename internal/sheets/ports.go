package sheets

import "context"

// Ports for outbound adapters.
type (
	// LedgerWriter appends rows to the spreadsheet mirror of the ledger.
	LedgerWriter interface {
		AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// LedgerReader reads back the rows mirrored for one year.
	LedgerReader interface {
		ReadRows(ctx context.Context, year int) ([]LedgerRow, error)
	}
)
