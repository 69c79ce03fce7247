// Package charts renders month summaries as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	"voxafi/internal/core"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to chart")

// minShare hides slices below one percent of the total so labels stay readable.
const minShare = 1.0

// CategoryPie draws the expense breakdown of a month overview.
func CategoryPie(ov core.MonthOverview) ([]byte, error) {
	total := 0.0
	for _, c := range ov.ByCategory {
		total += c.Amount.InexactFloat64()
	}
	if total <= 0 {
		return nil, ErrNoData
	}

	values := make([]chart.Value, 0, len(ov.ByCategory))
	for _, c := range ov.ByCategory {
		amount := c.Amount.InexactFloat64()
		share := amount / total * 100
		if share < minShare {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%.1f%%)", c.Name, core.FormatAmount(c.Amount), share),
			Value: amount,
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	pie := chart.PieChart{
		Title:  fmt.Sprintf("Expenses %04d-%02d", ov.Year, ov.Month+1),
		Width:  800,
		Height: 600,
		Values: values,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40, Left: 40, Right: 40, Bottom: 40},
			FillColor: chart.ColorWhite,
		},
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render category pie: %w", err)
	}
	return buf.Bytes(), nil
}

// TotalsBars draws income against expense for one month.
func TotalsBars(year, month int, totals core.Totals) ([]byte, error) {
	income, expense := totals.Income.InexactFloat64(), totals.Expense.InexactFloat64()
	if income == 0 && expense == 0 {
		return nil, ErrNoData
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("%04d-%02d balance %s", year, month+1, core.FormatAmount(totals.Balance())),
		Width:    600,
		Height:   400,
		BarWidth: 120,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: math.Max(income, expense)},
		},
		Background: chart.Style{
			Padding:   chart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20},
			FillColor: chart.ColorWhite,
		},
		Bars: []chart.Value{
			{
				Label: "Income " + core.FormatAmount(totals.Income),
				Value: income,
				Style: chart.Style{FillColor: chart.ColorGreen, StrokeColor: chart.ColorGreen},
			},
			{
				Label: "Expense " + core.FormatAmount(totals.Expense),
				Value: expense,
				Style: chart.Style{FillColor: chart.ColorRed, StrokeColor: chart.ColorRed},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render totals bars: %w", err)
	}
	return buf.Bytes(), nil
}
