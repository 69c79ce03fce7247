package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mkTx(id, amount string, typ Type, category, date string) Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return Transaction{
		ID:          id,
		UserID:      "u1",
		Amount:      decimal.RequireFromString(amount),
		Description: id,
		Category:    category,
		Date:        d,
		Type:        typ,
	}
}

func sample() []Transaction {
	return []Transaction{
		mkTx("a", "100", Income, "salary", "2024-03-05"),
		mkTx("b", "40", Expense, "food", "2024-03-10"),
		mkTx("c", "10", Expense, "food", "2024-04-01"),
	}
}

func TestMonthlyTotalsExample(t *testing.T) {
	got := MonthlyTotals(sample(), 2024, 2)
	if !got.Income.Equal(decimal.NewFromInt(100)) || !got.Expense.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected totals: income=%s expense=%s", got.Income, got.Expense)
	}
	if !got.Balance().Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected balance: %s", got.Balance())
	}
}

func TestCategoryTotalsExample(t *testing.T) {
	got := CategoryTotals(sample(), 2024, 2)
	if len(got) != 1 {
		t.Fatalf("expected one category, got %v", got)
	}
	if !got["food"].Equal(decimal.NewFromInt(40)) {
		t.Fatalf("food = %s, want 40", got["food"])
	}
	if _, ok := got["salary"]; ok {
		t.Fatalf("income category must not appear in expense breakdown")
	}
}

func TestFilterByMonth(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month int
		ids   []string
	}{
		{"march", 2024, 2, []string{"a", "b"}},
		{"april", 2024, 3, []string{"c"}},
		{"other year", 2023, 2, nil},
		{"negative month", 2024, -1, nil},
		{"month twelve", 2024, 12, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByMonth(sample(), tt.year, tt.month)
			if len(got) != len(tt.ids) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.ids))
			}
			for i, id := range tt.ids {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFilterByMonthUsesDateLocation(t *testing.T) {
	// 2024-03-31 23:30 at UTC-5 is already April in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	tx := Transaction{Date: time.Date(2024, time.March, 31, 23, 30, 0, 0, loc), Type: Expense}
	if len(FilterByMonth([]Transaction{tx}, 2024, 2)) != 1 {
		t.Fatalf("expected local March date to match March")
	}
	if len(FilterByMonth([]Transaction{tx}, 2024, 3)) != 0 {
		t.Fatalf("expected local March date not to match April")
	}
}

func TestFilterByMonthIdempotent(t *testing.T) {
	once := FilterByMonth(sample(), 2024, 2)
	twice := FilterByMonth(once, 2024, 2)
	if len(once) != len(twice) {
		t.Fatalf("filter not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("filter not idempotent at %d", i)
		}
	}
}

func TestTotalsSumMatchesFilteredSum(t *testing.T) {
	txs := append(sample(),
		mkTx("d", "0.10", Expense, "misc", "2024-03-11"),
		mkTx("e", "0.20", Expense, "misc", "2024-03-12"),
		mkTx("f", "12.5", Income, "gift", "2024-03-31"),
	)
	for _, month := range []int{0, 2, 3, 11} {
		totals := MonthlyTotals(txs, 2024, month)
		sum := decimal.Zero
		for _, tx := range FilterByMonth(txs, 2024, month) {
			sum = sum.Add(tx.Amount)
		}
		if !totals.Income.Add(totals.Expense).Equal(sum) {
			t.Errorf("month %d: income+expense=%s, filtered sum=%s", month, totals.Income.Add(totals.Expense), sum)
		}
	}
	if got := CategoryTotals(txs, 2024, 2)["misc"]; !got.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("misc = %s, want exactly 0.3", got)
	}
}

func TestEmptyInput(t *testing.T) {
	if got := FilterByMonth(nil, 2024, 2); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
	totals := MonthlyTotals(nil, 2024, 2)
	if !totals.Income.IsZero() || !totals.Expense.IsZero() {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
	if got := CategoryTotals(nil, 2024, 2); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if got := RecentTransactions(nil, 5); got == nil || len(got) != 0 {
		t.Fatalf("expected empty recent list, got %v", got)
	}
}

func TestRecentTransactions(t *testing.T) {
	txs := []Transaction{
		mkTx("old", "1", Expense, "x", "2024-01-01"),
		mkTx("new", "1", Expense, "x", "2024-05-01"),
		mkTx("tie1", "1", Expense, "x", "2024-03-01"),
		mkTx("tie2", "1", Expense, "x", "2024-03-01"),
		mkTx("mid", "1", Expense, "x", "2024-02-01"),
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{-3, nil},
		{1, []string{"new"}},
		{3, []string{"new", "tie1", "tie2"}},
		{10, []string{"new", "tie1", "tie2", "mid", "old"}},
	}
	for _, tt := range tests {
		got := RecentTransactions(txs, tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("n=%d: got %d items, want %d", tt.n, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("n=%d pos %d: got %s, want %s", tt.n, i, got[i].ID, tt.want[i])
			}
			if i > 0 && got[i].Date.After(got[i-1].Date) {
				t.Errorf("n=%d: result not sorted newest first", tt.n)
			}
		}
	}
	if txs[0].ID != "old" || txs[1].ID != "new" {
		t.Fatalf("input was reordered")
	}
}

func TestBuildMonthOverview(t *testing.T) {
	txs := append(sample(),
		mkTx("d", "40", Expense, "bills", "2024-03-02"),
		mkTx("e", "55", Expense, "rent", "2024-03-03"),
	)
	ov := BuildMonthOverview(txs, 2024, 2)
	if ov.Year != 2024 || ov.Month != 2 {
		t.Fatalf("unexpected period %d/%d", ov.Year, ov.Month)
	}
	if len(ov.Transactions) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(ov.Transactions))
	}
	want := []string{"rent", "bills", "food"}
	if len(ov.ByCategory) != len(want) {
		t.Fatalf("unexpected breakdown %v", ov.ByCategory)
	}
	for i, name := range want {
		if ov.ByCategory[i].Name != name {
			t.Errorf("breakdown[%d] = %s, want %s", i, ov.ByCategory[i].Name, name)
		}
	}
	if !ov.Totals.Expense.Equal(decimal.NewFromInt(135)) {
		t.Fatalf("expense = %s, want 135", ov.Totals.Expense)
	}
}
