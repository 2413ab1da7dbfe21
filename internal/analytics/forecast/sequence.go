package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"gonum.org/v1/gonum/floats"
)

const (
	defaultLookBack   = 12
	defaultTrainSplit = 0.8
)

// WindowAdapter learns the next month from a sliding window of the previous
// LookBack months on min-max scaled data. With Hidden == 0 it is a linear
// autoregression, otherwise a single tanh hidden layer. Training is
// deterministic for a given Seed.
type WindowAdapter struct {
	name         string
	LookBack     int
	Hidden       int
	Epochs       int
	LearningRate float64
	TrainSplit   float64
	Seed         uint64
}

// NewWindowLinearAdapter creates the linear window model
func NewWindowLinearAdapter(seed uint64) *WindowAdapter {
	return &WindowAdapter{
		name:         "WINDOW_LINEAR",
		LookBack:     defaultLookBack,
		Epochs:       400,
		LearningRate: 0.1,
		TrainSplit:   defaultTrainSplit,
		Seed:         seed,
	}
}

// NewWindowMLPAdapter creates the one-hidden-layer window model
func NewWindowMLPAdapter(seed uint64) *WindowAdapter {
	return &WindowAdapter{
		name:         "WINDOW_MLP",
		LookBack:     defaultLookBack,
		Hidden:       8,
		Epochs:       400,
		LearningRate: 0.05,
		TrainSplit:   defaultTrainSplit,
		Seed:         seed,
	}
}

func (a *WindowAdapter) Name() string { return a.name }

func (a *WindowAdapter) Family() Family { return FamilySequence }

func (a *WindowAdapter) Applicable(diagnostics.Report) bool { return true }

func (a *WindowAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.name, func() (FittedModel, error) {
		y := s.Values()
		if len(y) < 2*a.LookBack {
			return nil, fmt.Errorf("%s: %w: need at least %d months, have %d", a.name, ErrInsufficientData, 2*a.LookBack, len(y))
		}

		lo, hi := floats.Min(y), floats.Max(y)
		if hi == lo {
			return nil, fmt.Errorf("%s: %w: constant series cannot be scaled", a.name, ErrDegenerateSeries)
		}
		scaled := make([]float64, len(y))
		for i, v := range y {
			scaled[i] = (v - lo) / (hi - lo)
		}

		inputs, targets := windows(scaled, a.LookBack)
		trainSize := int(a.TrainSplit * float64(len(inputs)))
		if trainSize < 1 || trainSize >= len(inputs) {
			return nil, fmt.Errorf("%s: %w: cannot split %d samples", a.name, ErrInsufficientData, len(inputs))
		}

		net := newWindowNet(a.LookBack, a.Hidden, rand.New(rand.NewPCG(a.Seed, a.Seed^0x9e3779b97f4a7c15)))
		for epoch := 0; epoch < a.Epochs; epoch++ {
			if epoch%50 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			net.step(inputs[:trainSize], targets[:trainSize], a.LearningRate)
		}

		valMSE := 0.0
		for i := trainSize; i < len(inputs); i++ {
			d := net.predict(inputs[i]) - targets[i]
			valMSE += d * d
		}
		valMSE /= float64(len(inputs) - trainSize)

		model := &windowModel{
			name:   a.name,
			net:    net,
			lo:     lo,
			hi:     hi,
			scaled: scaled,
			y:      y,
			score:  valMSE,
			last:   s.Last().Month,
			hidden: a.Hidden,
			window: a.LookBack,
		}
		model.fitted, model.sigma = model.inSample()
		return model, nil
	})
}

func windows(values []float64, lookBack int) ([][]float64, []float64) {
	count := len(values) - lookBack
	inputs := make([][]float64, count)
	targets := make([]float64, count)
	for i := 0; i < count; i++ {
		inputs[i] = values[i : i+lookBack]
		targets[i] = values[i+lookBack]
	}
	return inputs, targets
}

// windowNet is a dense network with an optional tanh hidden layer, trained by
// full-batch gradient descent with momentum.
type windowNet struct {
	hidden int
	w1     [][]float64 // hidden x input
	b1     []float64
	w2     []float64 // output weights over hidden units, or over inputs when hidden == 0
	b2     float64

	vw1 [][]float64
	vb1 []float64
	vw2 []float64
	vb2 float64
}

const momentum = 0.9

func newWindowNet(inputs, hidden int, rng *rand.Rand) *windowNet {
	net := &windowNet{hidden: hidden}
	if hidden == 0 {
		net.w2 = make([]float64, inputs)
		net.vw2 = make([]float64, inputs)
		return net
	}

	limit := 1 / math.Sqrt(float64(inputs))
	net.w1 = make([][]float64, hidden)
	net.vw1 = make([][]float64, hidden)
	for h := range net.w1 {
		net.w1[h] = make([]float64, inputs)
		net.vw1[h] = make([]float64, inputs)
		for i := range net.w1[h] {
			net.w1[h][i] = (rng.Float64()*2 - 1) * limit
		}
	}
	net.b1 = make([]float64, hidden)
	net.vb1 = make([]float64, hidden)
	net.w2 = make([]float64, hidden)
	net.vw2 = make([]float64, hidden)
	outLimit := 1 / math.Sqrt(float64(hidden))
	for h := range net.w2 {
		net.w2[h] = (rng.Float64()*2 - 1) * outLimit
	}
	return net
}

func (n *windowNet) activations(x []float64) []float64 {
	if n.hidden == 0 {
		return x
	}
	act := make([]float64, n.hidden)
	for h := range act {
		act[h] = math.Tanh(floats.Dot(n.w1[h], x) + n.b1[h])
	}
	return act
}

func (n *windowNet) predict(x []float64) float64 {
	return floats.Dot(n.w2, n.activations(x)) + n.b2
}

func (n *windowNet) step(inputs [][]float64, targets []float64, lr float64) {
	gw2 := make([]float64, len(n.w2))
	gb2 := 0.0
	var gw1 [][]float64
	var gb1 []float64
	if n.hidden > 0 {
		gw1 = make([][]float64, n.hidden)
		for h := range gw1 {
			gw1[h] = make([]float64, len(inputs[0]))
		}
		gb1 = make([]float64, n.hidden)
	}

	scale := 2 / float64(len(inputs))
	for s, x := range inputs {
		act := n.activations(x)
		d := (floats.Dot(n.w2, act) + n.b2 - targets[s]) * scale
		floats.AddScaled(gw2, d, act)
		gb2 += d
		for h := 0; h < n.hidden; h++ {
			dh := d * n.w2[h] * (1 - act[h]*act[h])
			floats.AddScaled(gw1[h], dh, x)
			gb1[h] += dh
		}
	}

	for i := range n.w2 {
		n.vw2[i] = momentum*n.vw2[i] - lr*gw2[i]
		n.w2[i] += n.vw2[i]
	}
	n.vb2 = momentum*n.vb2 - lr*gb2
	n.b2 += n.vb2
	for h := 0; h < n.hidden; h++ {
		for i := range n.w1[h] {
			n.vw1[h][i] = momentum*n.vw1[h][i] - lr*gw1[h][i]
			n.w1[h][i] += n.vw1[h][i]
		}
		n.vb1[h] = momentum*n.vb1[h] - lr*gb1[h]
		n.b1[h] += n.vb1[h]
	}
}

type windowModel struct {
	name   string
	net    *windowNet
	lo, hi float64
	scaled []float64
	y      []float64
	fitted []float64
	sigma  float64
	score  float64
	hidden int
	window int
	last   time.Time
}

func (m *windowModel) unscale(v float64) float64 {
	return m.lo + v*(m.hi-m.lo)
}

func (m *windowModel) inSample() ([]float64, float64) {
	lookBack := m.window
	fitted := nanSlice(len(m.y))
	sse := 0.0
	for t := lookBack; t < len(m.y); t++ {
		fitted[t] = m.unscale(m.net.predict(m.scaled[t-lookBack : t]))
		d := m.y[t] - fitted[t]
		sse += d * d
	}
	return fitted, math.Sqrt(sse / float64(len(m.y)-lookBack))
}

func (m *windowModel) Score() float64 { return m.score }

func (m *windowModel) Metric() Metric { return MetricValidationMSE }

func (m *windowModel) Descriptor() Descriptor {
	order := "linear window"
	if m.hidden > 0 {
		order = fmt.Sprintf("tanh window, %d hidden units", m.hidden)
	}
	return Descriptor{
		Order:      order,
		Parameters: map[string]float64{
			"look_back":     float64(m.window),
			"in_sample_mae": CalculateMAE(m.y, m.fitted),
		},
	}
}

// Forecast feeds predictions back into the window recursively
func (m *windowModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}

	window := append([]float64(nil), m.scaled[len(m.scaled)-m.window:]...)
	values := make([]float64, horizon)
	stdErr := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next := m.net.predict(window)
		values[h] = m.unscale(next)
		stdErr[h] = m.sigma * math.Sqrt(float64(h+1))
		window = append(window[1:], next)
	}
	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *windowModel) InSample() ([]float64, bool) {
	return append([]float64(nil), m.fitted...), true
}
