package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoTransactions is returned when nothing is left to aggregate
var ErrNoTransactions = errors.New("no valid transactions")

// transactionDateLayouts are the accepted date formats for raw records
var transactionDateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Transaction is a single dated amount before monthly aggregation.
type Transaction struct {
	Date   time.Time
	Amount decimal.Decimal
}

// ParseTransaction parses a date and a decimal amount such as "1250.40".
// Locale-specific formats are expected to be normalized upstream.
func ParseTransaction(date, amount string) (Transaction, error) {
	date = strings.TrimSpace(date)
	var (
		parsed time.Time
		err    error
	)
	for _, layout := range transactionDateLayouts {
		parsed, err = time.Parse(layout, date)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	return Transaction{Date: parsed.UTC(), Amount: value}, nil
}

// AggregateMonthly sums transactions per calendar month, zero-fills missing
// months and drops a trailing month whose data stops before the month's last
// day. Sums are exact; conversion to float64 happens once per month.
func AggregateMonthly(txs []Transaction, trace *Trace) (MonthlySeries, error) {
	if len(txs) == 0 {
		return MonthlySeries{}, ErrNoTransactions
	}

	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	sums := make(map[time.Time]decimal.Decimal)
	for _, tx := range sorted {
		month := MonthStart(tx.Date)
		sums[month] = sums[month].Add(tx.Amount)
	}

	first := MonthStart(sorted[0].Date)
	lastDate := sorted[len(sorted)-1].Date
	last := MonthStart(lastDate)

	var points []Point
	for month := first; !month.After(last); month = AddMonths(month, 1) {
		amount, _ := sums[month].Float64()
		points = append(points, Point{Month: month, Amount: amount})
	}

	if len(points) > 1 {
		lastDay := AddMonths(last, 1).AddDate(0, 0, -1)
		day := time.Date(lastDate.Year(), lastDate.Month(), lastDate.Day(), 0, 0, 0, 0, time.UTC)
		if day.Before(lastDay) {
			points = points[:len(points)-1]
			if trace != nil {
				trace.Add("Dropped incomplete trailing month %s (data ends %s)",
					last.Format(DateLayout), day.Format(DateLayout))
			}
		}
	}

	series, err := NewMonthlySeries(points)
	if err != nil {
		return MonthlySeries{}, err
	}
	if trace != nil {
		trace.Add("Aggregated %d transactions into %d months (%s to %s)",
			len(txs), series.Len(), series.At(0).Month.Format(DateLayout), series.Last().Month.Format(DateLayout))
	}
	return series, nil
}
