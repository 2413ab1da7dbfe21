// Package anomaly flags historical months whose in-sample residual is
// unusually large relative to the spread of all residuals.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"gonum.org/v1/gonum/stat"
)

// Severity grades an anomaly
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Record is one flagged month
type Record struct {
	Date          time.Time `json:"-"`
	DateString    string    `json:"date"`
	Actual        float64   `json:"actual_value"`
	Predicted     float64   `json:"predicted_value"`
	Residual      float64   `json:"residual"`
	StdDeviations float64   `json:"std_deviations"`
	Severity      Severity  `json:"severity"`
	Description   string    `json:"description"`
}

// Config holds the severity thresholds in residual standard deviations
type Config struct {
	MediumSigma float64
	HighSigma   float64
}

// DefaultConfig returns default detector configuration
func DefaultConfig() Config {
	return Config{
		MediumSigma: 2.0,
		HighSigma:   3.0,
	}
}

// Detector grades residuals of a fitted model
type Detector struct {
	config Config
}

// NewDetector creates a detector; invalid thresholds fall back to 2 and 3 sigma
func NewDetector(config Config) *Detector {
	def := DefaultConfig()
	if config.MediumSigma <= 0 {
		config.MediumSigma = def.MediumSigma
	}
	if config.HighSigma < config.MediumSigma {
		config.HighSigma = max(def.HighSigma, config.MediumSigma)
	}
	return &Detector{config: config}
}

// Config returns the effective thresholds
func (d *Detector) Config() Config {
	return d.config
}

// Classify grades a residual expressed in standard deviations. Both
// thresholds are inclusive.
func (d *Detector) Classify(sigmas float64) Severity {
	switch {
	case sigmas >= d.config.HighSigma:
		return SeverityHigh
	case sigmas >= d.config.MediumSigma:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Detect compares the series with in-sample fitted values (NaN where the
// model has none) and returns Medium and High records, High first and then by
// descending deviation.
func (d *Detector) Detect(s analytics.MonthlySeries, fitted []float64, ok bool, trace *analytics.Trace) []Record {
	records := []Record{}
	if !ok || len(fitted) == 0 {
		trace.Add("anomalies: model exposes no in-sample fit, skipping detection")
		return records
	}

	points := s.Points()
	n := min(len(points), len(fitted))
	idx := make([]int, 0, n)
	residuals := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(fitted[i]) || math.IsInf(fitted[i], 0) {
			continue
		}
		idx = append(idx, i)
		residuals = append(residuals, points[i].Amount-fitted[i])
	}
	if len(residuals) == 0 {
		trace.Add("anomalies: no month has a fitted value")
		return records
	}

	mean, std := stat.PopMeanStdDev(residuals, nil)
	trace.Add("anomalies: %d residuals, mean %.2f, std %.2f", len(residuals), mean, std)
	if negligible(std, points, idx) {
		trace.Add("anomalies: residual std is zero, nothing to flag")
		return records
	}

	for k, i := range idx {
		residual := residuals[k]
		sigmas := math.Abs(residual) / std
		severity := d.Classify(sigmas)
		if severity == SeverityLow {
			continue
		}

		predicted := fitted[i]
		record := Record{
			Date:          points[i].Month,
			DateString:    points[i].Month.Format(analytics.DateLayout),
			Actual:        points[i].Amount,
			Predicted:     predicted,
			Residual:      residual,
			StdDeviations: sigmas,
			Severity:      severity,
			Description:   describe(residual, predicted),
		}
		records = append(records, record)
		trace.Add("anomalies: %s %s %.2f sigma: %s", record.DateString, severity, sigmas, record.Description)
	}

	sort.SliceStable(records, func(a, b int) bool {
		ra, rb := records[a].Severity.rank(), records[b].Severity.rank()
		if ra != rb {
			return ra > rb
		}
		return records[a].StdDeviations > records[b].StdDeviations
	})

	if len(records) == 0 {
		trace.Add("anomalies: none detected, all residuals below %.1f sigma", d.config.MediumSigma)
	} else {
		trace.Add("anomalies: %d detected", len(records))
	}
	return records
}

// negligibleSpread is the residual std, relative to the mean absolute
// amount, below which a fit counts as exact. Rounding noise of a perfect
// fit would otherwise be graded in units of itself.
const negligibleSpread = 1e-9

func negligible(std float64, points []analytics.Point, idx []int) bool {
	if std == 0 || math.IsNaN(std) {
		return true
	}
	scale := 0.0
	for _, i := range idx {
		scale += math.Abs(points[i].Amount)
	}
	scale /= float64(len(idx))
	return std <= negligibleSpread*math.Max(1, scale)
}

// PercentDeviation is |residual| / |predicted| in percent, or 0 when the
// prediction is zero.
func PercentDeviation(residual, predicted float64) float64 {
	if predicted == 0 {
		return 0
	}
	return math.Abs(residual) / math.Abs(predicted) * 100
}

func describe(residual, predicted float64) string {
	direction := "above"
	if residual < 0 {
		direction = "below"
	}
	return fmt.Sprintf("Spending %.0f%% %s normal", PercentDeviation(residual, predicted), direction)
}
