package handlers

import (
	"net/http"
	"testing"

	"github.com/ledgercast/ledgercast/internal/models"
	"github.com/ledgercast/ledgercast/internal/services"
)

const seriesBody = `{
	"series": [
		{"date": "2024-01-01", "amount": 10},
		{"date": "2024-02-01", "amount": 30},
		{"date": "2024-03-01", "amount": 20},
		{"date": "2024-04-01", "amount": 40},
		{"date": "2024-05-01", "amount": 25}
	]
}`

func TestHandler_CreatePrediction(t *testing.T) {
	app := newTestApp(newTestHandler(t))

	var prediction services.Prediction
	status := doJSON(t, app, "POST", "/v1/predictions", seriesBody, &prediction)

	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", status)
	}
	if prediction.ID == "" {
		t.Error("Expected prediction id")
	}
	if prediction.Result == nil || prediction.Result.Status != "success" {
		t.Fatalf("Expected success result, got %+v", prediction.Result)
	}
	if got := prediction.Result.Forecast.Values; len(got) != 3 || got[0] != 25 {
		t.Errorf("Expected naive forecast of 25 for 3 months, got %v", got)
	}

	var loaded services.Prediction
	status = doJSON(t, app, "GET", "/v1/predictions/"+prediction.ID, "", &loaded)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if loaded.ID != prediction.ID {
		t.Errorf("Expected id %s, got %s", prediction.ID, loaded.ID)
	}
}

func TestHandler_CreatePrediction_Transactions(t *testing.T) {
	app := newTestApp(newTestHandler(t))

	body := `{
		"transactions": [
			{"date": "2024-01-03", "amount": "120.50"},
			{"date": "2024-02-10", "amount": 80},
			{"date": "2024-03-31", "amount": "99.5"}
		],
		"months": "3"
	}`

	var prediction services.Prediction
	status := doJSON(t, app, "POST", "/v1/predictions", body, &prediction)

	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", status)
	}
	if got := prediction.Result.History.Values; len(got) != 3 || got[0] != 120.5 {
		t.Errorf("Expected aggregated history, got %v", got)
	}
	if prediction.Result.DurationInfo.ValidatedMonths != 3 {
		t.Errorf("Expected 3 validated months, got %d", prediction.Result.DurationInfo.ValidatedMonths)
	}
}

func TestHandler_CreatePrediction_Errors(t *testing.T) {
	app := newTestApp(newTestHandler(t))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"series": [`, http.StatusBadRequest, services.CodeInvalidRequest},
		{"empty body", `{}`, http.StatusUnprocessableEntity, services.CodeInsufficientData},
		{"months too large", `{"series":[{"date":"2024-01","amount":1}],"months":61}`, http.StatusBadRequest, services.CodeInvalidRequest},
		{"months zero", `{"series":[{"date":"2024-01","amount":1}],"months":0}`, http.StatusBadRequest, services.CodeInvalidRequest},
		{"bad date", `{"series":[{"date":"Jan 2024","amount":1}]}`, http.StatusUnprocessableEntity, services.CodeInvalidSeries},
		{"gap", `{"series":[{"date":"2024-01","amount":1},{"date":"2024-04","amount":1}]}`, http.StatusUnprocessableEntity, services.CodeInvalidSeries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp models.ErrorResponse
			status := doJSON(t, app, "POST", "/v1/predictions", tt.body, &errResp)

			if status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, status)
			}
			if errResp.Error.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, errResp.Error.Code)
			}
		})
	}
}

func TestHandler_GetPrediction_NotFound(t *testing.T) {
	app := newTestApp(newTestHandler(t))

	var errResp models.ErrorResponse
	status := doJSON(t, app, "GET", "/v1/predictions/7f9c2a64-52f8-4d0e-9a3b-0c1d2e3f4a5b", "", &errResp)
	if status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", status)
	}
	if errResp.Error.Code != services.CodeNotFound {
		t.Errorf("Expected code NOT_FOUND, got %s", errResp.Error.Code)
	}

	status = doJSON(t, app, "GET", "/v1/predictions/abc", "", &errResp)
	if status != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed id, got %d", status)
	}
}

func TestHandler_ListAndStats(t *testing.T) {
	app := newTestApp(newTestHandler(t))

	for i := 0; i < 2; i++ {
		body := `{"series":[{"date":"2024-01","amount":1},{"date":"2024-02","amount":2},{"date":"2024-03","amount":3}],"months":` +
			[]string{"3", "2"}[i] + `}`
		if status := doJSON(t, app, "POST", "/v1/predictions", body, nil); status != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", status)
		}
	}

	var list models.PredictionListResponse
	if status := doJSON(t, app, "GET", "/v1/predictions?limit=1", "", &list); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if list.Count != 1 || len(list.Predictions) != 1 {
		t.Errorf("Expected 1 prediction, got %d", list.Count)
	}

	if status := doJSON(t, app, "GET", "/v1/predictions?limit=0", "", nil); status != http.StatusBadRequest {
		t.Errorf("Expected status 400 for limit=0, got %d", status)
	}

	var stats models.StatsResponse
	if status := doJSON(t, app, "GET", "/v1/stats", "", &stats); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if stats.Predictions != 2 {
		t.Errorf("Expected 2 predictions, got %d", stats.Predictions)
	}
}
