package core

import "github.com/shopspring/decimal"

// Totals holds the income and expense sums of a month.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Balance is income minus expense.
func (t Totals) Balance() decimal.Decimal {
	return t.Income.Sub(t.Expense)
}

// CategoryAmount represents an expense amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthOverview is a compact summary for a specific year and zero-based month.
type MonthOverview struct {
	Year         int              `json:"year"`
	Month        int              `json:"month"`
	Totals       Totals           `json:"totals"`
	ByCategory   []CategoryAmount `json:"byCategory"`
	Transactions []Transaction    `json:"transactions"`
}
