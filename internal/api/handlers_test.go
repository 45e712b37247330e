package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/models"
)

type staticProducts []models.Product

func (s staticProducts) Products() []models.Product { return s }

type MockOutboxStats struct {
	mock.Mock
}

func (m *MockOutboxStats) GetPendingCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxStats) GetDeadLetterCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockCatalog) LastRun(ctx context.Context) (*models.RunResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunResult), args.Error(1)
}

func newTestRouter(products ProductSource, outbox OutboxStats) (http.Handler, *Tracker, *metrics.Metrics) {
	tracker := NewTracker()
	h := NewHandlers(tracker, products, slog.Default())
	if outbox != nil {
		h.WithOutbox(outbox)
	}
	m := metrics.New()
	return NewRouter(h, m.Registry), tracker, m
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok without outbox", func(t *testing.T) {
		router, _, _ := newTestRouter(nil, nil)
		rec := get(t, router, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("outbox counts", func(t *testing.T) {
		outbox := new(MockOutboxStats)
		outbox.On("GetPendingCount", mock.Anything).Return(int64(3), nil)
		outbox.On("GetDeadLetterCount", mock.Anything).Return(int64(0), nil)

		router, _, _ := newTestRouter(nil, outbox)
		rec := get(t, router, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","outbox":{"pending":3,"dead_letter":0}}`, rec.Body.String())
	})

	t.Run("dead letters make the service unhealthy", func(t *testing.T) {
		outbox := new(MockOutboxStats)
		outbox.On("GetPendingCount", mock.Anything).Return(int64(1500), nil)
		outbox.On("GetDeadLetterCount", mock.Anything).Return(int64(101), nil)

		router, _, _ := newTestRouter(nil, outbox)
		rec := get(t, router, "/health")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
	})

	t.Run("count errors still answer", func(t *testing.T) {
		outbox := new(MockOutboxStats)
		outbox.On("GetPendingCount", mock.Anything).Return(int64(0), errors.New("db down"))
		outbox.On("GetDeadLetterCount", mock.Anything).Return(int64(0), errors.New("db down"))

		router, _, _ := newTestRouter(nil, outbox)
		rec := get(t, router, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetProgress(t *testing.T) {
	router, tracker, _ := newTestRouter(nil, nil)
	runID := uuid.New()
	tracker.Update(models.Progress{RunID: runID, Stage: models.StageWalk, Page: 4, Records: 180})

	rec := get(t, router, "/api/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, models.StageWalk, got.Stage)
	assert.Equal(t, 4, got.Page)
	assert.Equal(t, 180, got.Records)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)
}

func TestListProducts(t *testing.T) {
	products := staticProducts{
		{SKU: "A1", Title: "Özel Kablo", Price: 12.5, Currency: "TRY"},
		{SKU: "B2", Price: 3, Currency: "USD"},
	}

	t.Run("all", func(t *testing.T) {
		router, _, _ := newTestRouter(products, nil)
		rec := get(t, router, "/api/v1/products")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got []models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, []models.Product(products), got)
	})

	t.Run("currency filter", func(t *testing.T) {
		router, _, _ := newTestRouter(products, nil)
		rec := get(t, router, "/api/v1/products?currency=usd")

		var got []models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "B2", got[0].SKU)
	})

	t.Run("empty filter result is an empty array", func(t *testing.T) {
		router, _, _ := newTestRouter(products, nil)
		rec := get(t, router, "/api/v1/products?currency=EUR")
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("no dataset", func(t *testing.T) {
		router, _, _ := newTestRouter(nil, nil)
		rec := get(t, router, "/api/v1/products")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"error":"no dataset available"}`, rec.Body.String())
	})
}

func TestCatalogFallback(t *testing.T) {
	stored := []models.Product{
		{SKU: "A1", Price: 12.5, Currency: "TRY"},
		{SKU: "C3", Price: 7, Currency: "EUR"},
	}

	newRouter := func(products ProductSource, catalog *MockCatalog) http.Handler {
		h := NewHandlers(NewTracker(), products, slog.Default()).WithCatalog(catalog)
		return NewRouter(h, metrics.New().Registry)
	}

	t.Run("empty store serves the catalogue", func(t *testing.T) {
		catalog := new(MockCatalog)
		catalog.On("ListProducts", mock.Anything).Return(stored, nil)

		rec := get(t, newRouter(staticProducts(nil), catalog), "/api/v1/products?currency=eur")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "C3", got[0].SKU)
	})

	t.Run("fresh dataset wins over the catalogue", func(t *testing.T) {
		catalog := new(MockCatalog)
		rec := get(t, newRouter(staticProducts{{SKU: "N1", Currency: "TRY"}}, catalog), "/api/v1/products")

		var got []models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "N1", got[0].SKU)
		catalog.AssertNotCalled(t, "ListProducts", mock.Anything)
	})

	t.Run("catalogue errors", func(t *testing.T) {
		catalog := new(MockCatalog)
		catalog.On("ListProducts", mock.Anything).Return(nil, errors.New("db down"))

		rec := get(t, newRouter(nil, catalog), "/api/v1/products")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"failed to load products"}`, rec.Body.String())
	})

	t.Run("health carries the last run", func(t *testing.T) {
		last := models.NewRunResult()
		last.Products = 42
		last.Finish(models.RunCompleted)

		catalog := new(MockCatalog)
		catalog.On("LastRun", mock.Anything).Return(last, nil)

		rec := get(t, newRouter(nil, catalog), "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Status  string `json:"status"`
			LastRun struct {
				ID       string `json:"id"`
				Status   string `json:"status"`
				Products int    `json:"products"`
			} `json:"last_run"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, last.ID.String(), body.LastRun.ID)
		assert.Equal(t, "completed", body.LastRun.Status)
		assert.Equal(t, 42, body.LastRun.Products)
	})

	t.Run("health without previous runs", func(t *testing.T) {
		catalog := new(MockCatalog)
		catalog.On("LastRun", mock.Anything).Return(nil, errors.New("no rows in result set"))

		rec := get(t, newRouter(nil, catalog), "/health")
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, m := newTestRouter(nil, nil)
	m.ObservePage("table", 25, 2*time.Second)

	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricelist_pages_total 1")
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tracker.Update(models.Progress{Page: i})
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = tracker.Snapshot()
	}
	<-done
	assert.Equal(t, 99, tracker.Snapshot().Page)
}
