// Package worker mirrors transaction changes into the spreadsheet ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voxafi/internal/amqp"
	"voxafi/internal/cache"
	"voxafi/internal/core"
	"voxafi/internal/sheets"
	"voxafi/internal/store"
)

const (
	seenCacheSize = 10_000
	seenCacheTTL  = 24 * time.Hour
)

// MirrorWorker turns TransactionEvents into ledger rows. Events carry ids
// only, so created and updated events are resolved against the store.
// Redelivered events are recognised by kind, id and version and skipped.
type MirrorWorker struct {
	transactions store.TransactionStore
	ledger       sheets.LedgerWriter
	seen         *cache.LRUCache[string]
}

func NewMirrorWorker(transactions store.TransactionStore, ledger sheets.LedgerWriter) *MirrorWorker {
	return &MirrorWorker{
		transactions: transactions,
		ledger:       ledger,
		seen:         cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
	}
}

// SeenCache exposes the dedup cache so it can be swept by a cache.Manager.
func (w *MirrorWorker) SeenCache() *cache.LRUCache[string] {
	return w.seen
}

// HandleEvent processes one event. A returned error asks for redelivery.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	key := fmt.Sprintf("%s|%s|%d", ev.Kind, ev.TransactionID, ev.Version)
	if ref, ok := w.seen.Get(key); ok {
		slog.DebugContext(ctx, "Skipping already mirrored event",
			"transaction_id", ev.TransactionID,
			"version", ev.Version,
			"row_ref", ref)
		return nil
	}

	slog.InfoContext(ctx, "Processing transaction event",
		"kind", ev.Kind,
		"transaction_id", ev.TransactionID,
		"version", ev.Version)

	var row sheets.LedgerRow
	switch ev.Kind {
	case amqp.EventDeleted:
		row = sheets.Tombstone(ev.TransactionID, ev.UserID, ev.Timestamp)
	case amqp.EventCreated, amqp.EventUpdated:
		tx, err := w.transactions.GetTransaction(ctx, ev.TransactionID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted before we got to it; the delete event writes the tombstone.
			slog.WarnContext(ctx, "Transaction no longer exists, skipping",
				"transaction_id", ev.TransactionID,
				"kind", ev.Kind)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		row = sheets.RowFromTransaction(tx, string(ev.Kind))
	default:
		return fmt.Errorf("%w: kind %q", amqp.ErrInvalidEvent, ev.Kind)
	}

	ref, err := w.ledger.AppendRow(ctx, row)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	w.seen.Set(key, ref)

	slog.InfoContext(ctx, "Transaction mirrored",
		"transaction_id", ev.TransactionID,
		"kind", ev.Kind,
		"row_ref", ref)
	return nil
}

// Backfill writes a snapshot row for every stored transaction matching preds.
// It recovers a ledger after worker downtime or lost messages; failures are
// counted and logged rather than aborting the run. When the ledger can be
// read back, transactions that already have a row are skipped.
func (w *MirrorWorker) Backfill(ctx context.Context, preds ...store.Predicate) (synced, failed int, err error) {
	txs, err := w.transactions.QueryTransactions(ctx, preds...)
	if err != nil {
		return 0, 0, fmt.Errorf("query transactions: %w", err)
	}
	if len(txs) == 0 {
		slog.InfoContext(ctx, "No transactions to backfill")
		return 0, 0, nil
	}

	mirrored := w.mirroredIDs(ctx, txs)
	skipped := 0
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		if mirrored[tx.ID] {
			skipped++
			continue
		}
		if _, err := w.ledger.AppendRow(ctx, sheets.RowFromTransaction(tx, "snapshot")); err != nil {
			slog.ErrorContext(ctx, "Failed to backfill transaction",
				"transaction_id", tx.ID,
				"error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Backfill completed",
		"total", len(txs),
		"synced", synced,
		"skipped", skipped,
		"errors", failed)
	return synced, failed, nil
}

// mirroredIDs collects the transaction ids already present in the ledger
// years touched by txs. An unreadable year counts as empty.
func (w *MirrorWorker) mirroredIDs(ctx context.Context, txs []core.Transaction) map[string]bool {
	reader, ok := w.ledger.(sheets.LedgerReader)
	if !ok {
		return nil
	}
	ids := make(map[string]bool)
	read := make(map[int]bool)
	for _, tx := range txs {
		year := tx.Date.Year()
		if read[year] {
			continue
		}
		read[year] = true
		rows, err := reader.ReadRows(ctx, year)
		if err != nil {
			slog.WarnContext(ctx, "Failed to read ledger, backfilling the whole year", "year", year, "error", err)
			continue
		}
		for _, row := range rows {
			ids[row.TransactionID] = true
		}
	}
	return ids
}
