package sheets

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"voxafi/internal/core"
)

// Header is the first row of every ledger sheet.
var Header = []any{"Date", "Type", "Category", "Description", "Amount", "User", "Transaction", "Event"}

var ErrInvalidRow = errors.New("invalid ledger row")

// LedgerRow is one line of the mirrored ledger. Deleted transactions are
// recorded as tombstones that carry only the ids and the event.
type LedgerRow struct {
	Date          time.Time
	Type          core.Type
	Category      string
	Description   string
	Amount        decimal.Decimal
	UserID        string
	TransactionID string
	Event         string
}

// RowFromTransaction builds the row written for a created or updated transaction.
func RowFromTransaction(tx core.Transaction, event string) LedgerRow {
	return LedgerRow{
		Date:          tx.Date,
		Type:          tx.Type,
		Category:      tx.Category,
		Description:   tx.Description,
		Amount:        tx.Amount,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Event:         event,
	}
}

// Tombstone builds the row written when a transaction is deleted.
func Tombstone(transactionID, userID string, at time.Time) LedgerRow {
	return LedgerRow{Date: at, UserID: userID, TransactionID: transactionID, Event: "deleted"}
}

// IsTombstone reports whether the row marks a deletion.
func (r LedgerRow) IsTombstone() bool {
	return r.Event == "deleted"
}

// Values renders the row in column order.
func (r LedgerRow) Values() []any {
	amount := ""
	if !r.IsTombstone() {
		amount = core.FormatAmount(r.Amount)
	}
	return []any{
		r.Date.Format("2006-01-02"),
		string(r.Type),
		r.Category,
		r.Description,
		amount,
		r.UserID,
		r.TransactionID,
		r.Event,
	}
}

// ParseRow converts a values row (as returned by the Sheets API) back into a
// LedgerRow. Header rows are rejected with ErrInvalidRow.
func ParseRow(values []any) (LedgerRow, error) {
	if len(values) < len(Header) {
		return LedgerRow{}, fmt.Errorf("%w: %d columns", ErrInvalidRow, len(values))
	}
	cols := make([]string, len(values))
	for i, v := range values {
		cols[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	date, err := time.Parse("2006-01-02", cols[0])
	if err != nil {
		return LedgerRow{}, fmt.Errorf("%w: date %q", ErrInvalidRow, cols[0])
	}
	row := LedgerRow{
		Date:          date,
		Category:      cols[2],
		Description:   cols[3],
		UserID:        cols[5],
		TransactionID: cols[6],
		Event:         cols[7],
	}
	if row.IsTombstone() {
		return row, nil
	}
	if row.Type, err = core.ParseType(cols[1]); err != nil {
		return LedgerRow{}, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if row.Amount, err = decimal.NewFromString(strings.ReplaceAll(cols[4], ",", ".")); err != nil {
		return LedgerRow{}, fmt.Errorf("%w: amount %q", ErrInvalidRow, cols[4])
	}
	return row, nil
}
