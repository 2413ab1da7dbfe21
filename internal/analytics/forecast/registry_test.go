package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Order(t *testing.T) {
	r := DefaultRegistry(DefaultOptions())
	assert.Equal(t, []string{
		"SARIMA(1,0,1)(1,1,1,12)",
		"ARIMA(1,1,1)",
		"AR(1)",
		"MA(1)",
		"ARMA(1,1)",
		"HoltWinters",
		"Prophet",
		"WINDOW_LINEAR",
		"WINDOW_MLP",
		"SARIMAX_EXOG",
		"VAR(1)",
		"VARMA(1,1)",
	}, r.Names())
}

func TestDefaultRegistry_WithoutSequenceModels(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableSequenceModels = false
	r := DefaultRegistry(opts)

	assert.Equal(t, 10, r.Len())
	_, ok := r.Lookup("WINDOW_MLP")
	assert.False(t, ok)
}

func TestDefaultRegistry_Applicability(t *testing.T) {
	r := DefaultRegistry(DefaultOptions())

	applicable := func(stationary, seasonal bool) []string {
		var names []string
		report := diagnosticsReport(stationary, seasonal)
		for _, a := range r.Adapters() {
			if a.Applicable(report) {
				names = append(names, a.Name())
			}
		}
		return names
	}

	stationary := applicable(true, false)
	assert.Contains(t, stationary, "AR(1)")
	assert.NotContains(t, stationary, "ARIMA(1,1,1)")
	assert.NotContains(t, stationary, "SARIMA(1,0,1)(1,1,1,12)")

	trending := applicable(false, true)
	assert.Contains(t, trending, "ARIMA(1,1,1)")
	assert.Contains(t, trending, "SARIMA(1,0,1)(1,1,1,12)")
	assert.NotContains(t, trending, "ARMA(1,1)")
}

func TestRegistry_Only(t *testing.T) {
	r := DefaultRegistry(DefaultOptions())

	only, err := r.Only("VAR(1)", "HoltWinters", "AR(1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"AR(1)", "HoltWinters", "VAR(1)"}, only.Names(), "registration order is kept")

	a, ok := only.Lookup("HoltWinters")
	require.True(t, ok)
	assert.Equal(t, "HoltWinters", a.Name())
	_, ok = only.Lookup("Prophet")
	assert.False(t, ok)

	_, err = r.Only("HoltWinters", "LSTM")
	assert.ErrorContains(t, err, "LSTM")
}

func TestDefaultRegistry_Models(t *testing.T) {
	opts := DefaultOptions()
	opts.Models = []string{"Prophet", "ARIMA(1,1,1)"}
	assert.Equal(t, []string{"ARIMA(1,1,1)", "Prophet"}, DefaultRegistry(opts).Names())
	assert.NoError(t, ValidateModels(opts))

	opts.Models = []string{"Prophet", "nope"}
	assert.Equal(t, 12, DefaultRegistry(opts).Len(), "unknown names fall back to every model")
	assert.Error(t, ValidateModels(opts))

	opts.Models = nil
	assert.NoError(t, ValidateModels(opts))
}

func TestRegistry_Register(t *testing.T) {
	r, err := NewRegistry(NewHoltWintersAdapter(12))
	require.NoError(t, err)

	err = r.Register(NewHoltWintersAdapter(12))
	assert.Error(t, err)
	assert.Error(t, r.Register(nil))

	require.NoError(t, r.Register(NewProphetAdapter(12)))
	a, ok := r.Lookup("Prophet")
	require.True(t, ok)
	assert.Equal(t, FamilyCurve, a.Family())

	adapters := r.Adapters()
	adapters[0] = nil
	assert.NotNil(t, r.Adapters()[0], "Adapters must return a copy")
}
