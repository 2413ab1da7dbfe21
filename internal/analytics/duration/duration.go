// Package duration decides how many months to forecast from the number of
// active months in the history and an optional user request.
package duration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/spf13/cast"
)

// Code identifies the branch that produced a Decision
type Code string

const (
	CodeAuto             Code = "auto"
	CodeInvalidIgnored   Code = "invalid-request-ignored"
	CodeWithinSafe       Code = "user-within-safe"
	CodeOverrideAccepted Code = "user-override-accepted"
	CodeReduced          Code = "user-request-reduced"
)

// Options are the sizing rules
type Options struct {
	// ObservationsPerParameter is the number of active months needed per forecast month
	ObservationsPerParameter int
	MinMonths                int
	MaxMonths                int
	// SparsityThreshold is the active-month density below which a warning is raised
	SparsityThreshold float64
}

// DefaultOptions returns the default sizing rules
func DefaultOptions() Options {
	return Options{
		ObservationsPerParameter: 3,
		MinMonths:                3,
		MaxMonths:                24,
		SparsityThreshold:        0.20,
	}
}

// Request is an optional, untrusted requested horizon
type Request struct {
	raw     interface{}
	present bool
}

// Auto is the absent request
func Auto() Request {
	return Request{}
}

// Months requests a horizon
func Months(n int) Request {
	return Request{raw: n, present: true}
}

// FromValue wraps a decoded value (number, numeric string or anything else).
// A nil value is an absent request.
func FromValue(v interface{}) Request {
	if v == nil {
		return Request{}
	}
	return Request{raw: v, present: true}
}

// Present reports whether a value was supplied
func (r Request) Present() bool {
	return r.present
}

// Raw returns the supplied value
func (r Request) Raw() interface{} {
	return r.raw
}

func (r Request) String() string {
	if !r.present {
		return "auto"
	}
	return fmt.Sprintf("%v", r.raw)
}

// Value returns the requested month count when the request is numeric.
// Absent, boolean and other non-numeric requests report false.
func (r Request) Value() (int, bool) {
	if !r.present {
		return 0, false
	}
	return r.parse()
}

// parse converts the request to a month count. Strings must hold an integer;
// other numeric kinds are truncated. Booleans are not numbers here even
// though cast would turn true into 1.
func (r Request) parse() (int, bool) {
	switch v := r.raw.(type) {
	case nil, bool, *bool:
		return 0, false
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	case *int:
		if v == nil {
			return 0, false
		}
		return *v, true
	default:
		n, err := cast.ToIntE(v)
		return n, err == nil
	}
}

// Decision is the validated horizon
type Decision struct {
	Requested       string  `json:"requested_months"`
	Months          int     `json:"validated_months"`
	Code            Code    `json:"code"`
	Rationale       string  `json:"rationale"`
	SparsityWarning bool    `json:"sparsity_warning"`
	Density         float64 `json:"density"`
	SafeMonths      int     `json:"safe_months"`
	TotalMonths     int     `json:"total_months"`
	ActiveMonths    int     `json:"active_months"`
}

// Validator applies the sizing rules
type Validator struct {
	opts Options
}

// NewValidator creates a validator; zero fields take their defaults
func NewValidator(opts Options) *Validator {
	def := DefaultOptions()
	if opts.ObservationsPerParameter <= 0 {
		opts.ObservationsPerParameter = def.ObservationsPerParameter
	}
	if opts.MinMonths <= 0 {
		opts.MinMonths = def.MinMonths
	}
	if opts.MaxMonths < opts.MinMonths {
		opts.MaxMonths = max(def.MaxMonths, opts.MinMonths)
	}
	if opts.SparsityThreshold <= 0 {
		opts.SparsityThreshold = def.SparsityThreshold
	}
	return &Validator{opts: opts}
}

// Options returns the effective rules
func (v *Validator) Options() Options {
	return v.opts
}

// Validate decides the horizon for s
func (v *Validator) Validate(s analytics.MonthlySeries, req Request, trace *analytics.Trace) Decision {
	total := s.Len()
	active := s.ActiveMonths()
	density := 0.0
	if total > 0 {
		density = float64(active) / float64(total)
	}

	trace.Add("duration: %d months covered, %d active, density %.1f%%", total, active, density*100)

	rawSafe := active / v.opts.ObservationsPerParameter
	safe := min(max(rawSafe, v.opts.MinMonths), v.opts.MaxMonths)
	trace.Add("duration: raw safe horizon %d / %d = %d months", active, v.opts.ObservationsPerParameter, rawSafe)
	if safe != rawSafe {
		trace.Add("duration: clamped to [%d, %d] -> %d months", v.opts.MinMonths, v.opts.MaxMonths, safe)
	}

	d := Decision{
		Requested:    req.String(),
		Density:      density,
		SafeMonths:   safe,
		TotalMonths:  total,
		ActiveMonths: active,
	}

	if density < v.opts.SparsityThreshold {
		d.SparsityWarning = true
		trace.Warn("duration: sparse data, only %.1f%% of months are active; forecasts are unreliable", density*100)
	}

	switch requested, ok := req.parse(); {
	case !req.Present():
		d.Months, d.Code = safe, CodeAuto
		d.Rationale = fmt.Sprintf("auto: %d months from %d active months", safe, active)
		trace.Add("duration: auto mode selects %d months", safe)

	case !ok || requested <= 0:
		d.Months, d.Code = safe, CodeInvalidIgnored
		d.Rationale = fmt.Sprintf("invalid request %q ignored, using safe horizon %d", req.String(), safe)
		trace.Warn("duration: request %q is not a positive month count, using %d", req.String(), safe)

	case requested <= safe:
		d.Months, d.Code = requested, CodeWithinSafe
		d.Rationale = fmt.Sprintf("user request %d within safe horizon %d", requested, safe)
		trace.Add("duration: approved %d months (safe horizon %d)", requested, safe)

	case requested <= v.opts.MaxMonths && requested <= total:
		d.Months, d.Code = requested, CodeOverrideAccepted
		d.Rationale = fmt.Sprintf("user override %d accepted (history covers %d months)", requested, total)
		trace.Add("duration: user override %d accepted, history covers %d months", requested, total)

	default:
		d.Months, d.Code = safe, CodeReduced
		d.Rationale = fmt.Sprintf("user request reduced %d -> %d", requested, safe)
		trace.Warn("duration: request %d reduced by %d to safe horizon %d; not enough history to support it", requested, requested-safe, safe)
	}

	if d.SparsityWarning {
		d.Rationale += " - sparsity detected"
	}
	return d
}
