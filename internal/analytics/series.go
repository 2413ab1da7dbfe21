// Package analytics provides the monthly series model shared by the
// diagnostics, forecasting, tournament, duration and anomaly packages.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the layout used for every month date that leaves the core.
const DateLayout = "2006-01-02"

var (
	// ErrEmptySeries is returned when a series has no observations
	ErrEmptySeries = errors.New("series is empty")
	// ErrNotMonthStart is returned when a point is not on the first day of a month
	ErrNotMonthStart = errors.New("point date is not a month start")
	// ErrNonConsecutive is returned when months are unordered or have gaps
	ErrNonConsecutive = errors.New("months are not consecutive")
	// ErrNonFinite is returned when an amount is NaN or infinite
	ErrNonFinite = errors.New("amount is not finite")
)

// Point is one month of a MonthlySeries.
type Point struct {
	Month  time.Time
	Amount float64
}

// MonthlySeries is an ordered run of consecutive calendar months with one
// amount each. The zero value is an empty series. A MonthlySeries never
// exposes its backing slice, so it is immutable once constructed.
type MonthlySeries struct {
	points []Point
}

// NewMonthlySeries validates points and builds a series from them.
// Every date must fall on the first day of its month; dates are stored as
// UTC month starts.
func NewMonthlySeries(points []Point) (MonthlySeries, error) {
	if len(points) == 0 {
		return MonthlySeries{}, ErrEmptySeries
	}

	out := make([]Point, len(points))
	for i, p := range points {
		if p.Month.Day() != 1 {
			return MonthlySeries{}, fmt.Errorf("%w: %s", ErrNotMonthStart, p.Month.Format(DateLayout))
		}
		if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
			return MonthlySeries{}, fmt.Errorf("%w at %s", ErrNonFinite, p.Month.Format(DateLayout))
		}
		month := MonthStart(p.Month)
		if i > 0 && !month.Equal(AddMonths(out[i-1].Month, 1)) {
			return MonthlySeries{}, fmt.Errorf("%w: %s follows %s",
				ErrNonConsecutive, month.Format(DateLayout), out[i-1].Month.Format(DateLayout))
		}
		out[i] = Point{Month: month, Amount: p.Amount}
	}

	return MonthlySeries{points: out}, nil
}

// NewMonthlySeriesFromValues builds a series of consecutive months starting at start.
func NewMonthlySeriesFromValues(start time.Time, values []float64) (MonthlySeries, error) {
	points := make([]Point, len(values))
	month := MonthStart(start)
	for i, v := range values {
		points[i] = Point{Month: AddMonths(month, i), Amount: v}
	}
	return NewMonthlySeries(points)
}

// Len returns the number of months
func (s MonthlySeries) Len() int {
	return len(s.points)
}

// IsEmpty reports whether the series has no months
func (s MonthlySeries) IsEmpty() bool {
	return len(s.points) == 0
}

// At returns the i-th point
func (s MonthlySeries) At(i int) Point {
	return s.points[i]
}

// Last returns the final point. It panics on an empty series.
func (s MonthlySeries) Last() Point {
	return s.points[len(s.points)-1]
}

// Points returns a copy of the points
func (s MonthlySeries) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns a copy of the amounts in month order
func (s MonthlySeries) Values() []float64 {
	values := make([]float64, len(s.points))
	for i, p := range s.points {
		values[i] = p.Amount
	}
	return values
}

// Dates returns the months in order
func (s MonthlySeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.points))
	for i, p := range s.points {
		dates[i] = p.Month
	}
	return dates
}

// FormattedDates returns the months formatted with DateLayout
func (s MonthlySeries) FormattedDates() []string {
	dates := make([]string, len(s.points))
	for i, p := range s.points {
		dates[i] = p.Month.Format(DateLayout)
	}
	return dates
}

// ActiveMonths counts months with a strictly positive amount
func (s MonthlySeries) ActiveMonths() int {
	active := 0
	for _, p := range s.points {
		if p.Amount > 0 {
			active++
		}
	}
	return active
}

// DistinctValues counts the distinct amounts in the series
func (s MonthlySeries) DistinctValues() int {
	seen := make(map[float64]struct{}, len(s.points))
	for _, p := range s.points {
		seen[p.Amount] = struct{}{}
	}
	return len(seen)
}

// IsConstant reports whether every month carries the same amount
func (s MonthlySeries) IsConstant() bool {
	return len(s.points) > 0 && s.DistinctValues() == 1
}

// Range returns the minimum and maximum amounts
func (s MonthlySeries) Range() (lo, hi float64) {
	if len(s.points) == 0 {
		return 0, 0
	}
	lo, hi = s.points[0].Amount, s.points[0].Amount
	for _, p := range s.points[1:] {
		if p.Amount < lo {
			lo = p.Amount
		}
		if p.Amount > hi {
			hi = p.Amount
		}
	}
	return lo, hi
}

// FutureMonths returns the n month starts following the last observation.
func (s MonthlySeries) FutureMonths(n int) []time.Time {
	if n <= 0 || len(s.points) == 0 {
		return nil
	}
	last := s.Last().Month
	months := make([]time.Time, n)
	for i := range months {
		months[i] = AddMonths(last, i+1)
	}
	return months
}

// MonthStart truncates t to the first instant of its month in UTC
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a month start forward by n months
func AddMonths(month time.Time, n int) time.Time {
	return time.Date(month.Year(), month.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}
