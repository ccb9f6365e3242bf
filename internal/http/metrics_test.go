package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/ask", func(c echo.Context) error {
		return errors.New("boom")
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/ask", nil),
		httptest.NewRequest(http.MethodGet, "/wp-admin/login.php", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	var sawDuration, sawSize, sawActive bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "raglab.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					counts[endpoint.AsString()+" "+status.Emit()] += dp.Value
				}
			case "raglab.http.request_duration_seconds":
				sawDuration = true
			case "raglab.http.response_size_bytes":
				sawSize = true
			case "raglab.http.active_requests":
				sawActive = true
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					assert.Zero(t, dp.Value, "active requests should return to zero")
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"/health 200":   2,
		"/ask 500":      1,
		"unmatched 404": 1,
	}, counts)
	assert.True(t, sawDuration, "duration histogram not recorded")
	assert.True(t, sawSize, "response size histogram not recorded")
	assert.True(t, sawActive, "active requests not recorded")
}

func TestNewHTTPMetrics_NilLogger(t *testing.T) {
	m := NewHTTPMetrics(nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.logger)
	assert.NotNil(t, m.requestsTotal)
}

func TestRouteLabel(t *testing.T) {
	e := echo.New()
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"matched route", "/ask", http.StatusOK, "/ask"},
		{"error on matched route", "/ask", http.StatusBadGateway, "/ask"},
		{"not found", "/ask", http.StatusNotFound, "unmatched"},
		{"method not allowed", "/ask", http.StatusMethodNotAllowed, "unmatched"},
		{"no route", "", http.StatusOK, "unmatched"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			assert.Equal(t, tt.want, routeLabel(c, tt.status))
		})
	}
}
