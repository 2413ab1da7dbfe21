package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercast/ledgercast/internal/config"
)

var predictionColumns = []string{"id", "created_at", "model_name", "validated_months", "rationale", "anomaly_count", "payload"}

func samplePrediction(id string, at time.Time, anomalies int) Prediction {
	return Prediction{
		ID:              id,
		CreatedAt:       at,
		ModelName:       "HoltWinters",
		ValidatedMonths: 4,
		Rationale:       "auto",
		AnomalyCount:    anomalies,
		Payload:         json.RawMessage(`{"status":"success"}`),
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, samplePrediction("a", base, 1)))
	require.NoError(t, s.Save(ctx, samplePrediction("b", base.Add(time.Minute), 2)))
	require.NoError(t, s.Save(ctx, samplePrediction("c", base.Add(time.Minute), 0)))

	assert.Error(t, s.Save(ctx, samplePrediction("a", base, 0)), "duplicate id")
	assert.Error(t, s.Save(ctx, Prediction{}), "missing id")

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AnomalyCount)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID, "latest insert wins a timestamp tie")
	assert.Equal(t, "b", list[1].ID)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Predictions: 3, Anomalies: 3}, st)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, clampLimit(0))
	assert.Equal(t, DefaultListLimit, clampLimit(-5))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, MaxListLimit, clampLimit(MaxListLimit+1))
}

func TestNew_Memory(t *testing.T) {
	s, err := New(context.Background(), config.StoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), config.StoreConfig{Type: "sqlite"})
	assert.Error(t, err)
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(createPredictionsSQL)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	p := samplePrediction("p1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2)
	mock.ExpectExec(regexp.QuoteMeta(insertPredictionSQL)).
		WithArgs(p.ID, p.CreatedAt, p.ModelName, p.ValidatedMonths, p.Rationale, p.AnomalyCount, []byte(p.Payload)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertPredictionSQL)).
		WillReturnError(fmt.Errorf("duplicate key"))

	err := s.Save(context.Background(), samplePrediction("p1", time.Now(), 0))
	assert.ErrorContains(t, err, "duplicate key")
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(selectPredictionSQL)).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(predictionColumns).
			AddRow("p1", at, "SARIMA(1,0,1)(1,1,1,12)", 6, "user-within-safe", 1, []byte(`{"status":"success"}`)))

	p, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "SARIMA(1,0,1)(1,1,1,12)", p.ModelName)
	assert.Equal(t, 6, p.ValidatedMonths)
	assert.JSONEq(t, `{"status":"success"}`, string(p.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectPredictionSQL)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(listPredictionsSQL)).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows(predictionColumns).
			AddRow("p2", at.Add(time.Hour), "Prophet", 4, "auto", 0, []byte(`{}`)).
			AddRow("p1", at, "naive", 3, "auto", 2, []byte(`{}`)))

	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
	assert.Equal(t, 2, list[1].AnomalyCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(statsSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(int64(12), int64(30)))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Predictions: 12, Anomalies: 30}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}
