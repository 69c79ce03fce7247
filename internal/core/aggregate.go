package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FilterByMonth returns the transactions whose date falls in the given year
// and zero-based month (January is 0). The calendar fields of each date are
// read in the date's own location. Input order is preserved.
func FilterByMonth(transactions []Transaction, year, month int) []Transaction {
	out := make([]Transaction, 0)
	if month < 0 || month > 11 {
		return out
	}
	for _, tx := range transactions {
		if inMonth(tx.Date, year, month) {
			out = append(out, tx)
		}
	}
	return out
}

func inMonth(t time.Time, year, month int) bool {
	y, m, _ := t.Date()
	return y == year && int(m)-1 == month
}

// MonthlyTotals sums income and expense for the given year and zero-based month.
func MonthlyTotals(transactions []Transaction, year, month int) Totals {
	totals := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range FilterByMonth(transactions, year, month) {
		if tx.IsIncome() {
			totals.Income = totals.Income.Add(tx.Amount)
		} else {
			totals.Expense = totals.Expense.Add(tx.Amount)
		}
	}
	return totals
}

// CategoryTotals sums expense amounts by category for the given year and
// zero-based month. Categories without expenses in the month are absent.
func CategoryTotals(transactions []Transaction, year, month int) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, tx := range FilterByMonth(transactions, year, month) {
		if tx.Type != Expense {
			continue
		}
		if sum, ok := out[tx.Category]; ok {
			out[tx.Category] = sum.Add(tx.Amount)
		} else {
			out[tx.Category] = tx.Amount
		}
	}
	return out
}

// RecentTransactions returns at most n transactions, newest first. Equal dates
// keep their input order. The input slice is not modified.
func RecentTransactions(transactions []Transaction, n int) []Transaction {
	if n <= 0 || len(transactions) == 0 {
		return []Transaction{}
	}
	sorted := make([]Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// BuildMonthOverview bundles the month's totals, its category breakdown
// (largest first, ties by name) and the matching transactions.
func BuildMonthOverview(transactions []Transaction, year, month int) MonthOverview {
	items := FilterByMonth(transactions, year, month)
	byCat := CategoryTotals(items, year, month)

	breakdown := make([]CategoryAmount, 0, len(byCat))
	for name, amount := range byCat {
		breakdown = append(breakdown, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if c := breakdown[i].Amount.Cmp(breakdown[j].Amount); c != 0 {
			return c > 0
		}
		return breakdown[i].Name < breakdown[j].Name
	})

	return MonthOverview{
		Year:         year,
		Month:        month,
		Totals:       MonthlyTotals(items, year, month),
		ByCategory:   breakdown,
		Transactions: items,
	}
}
