package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/prop.go/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetricsAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ResetRequested(metrics.SourceButton)
	s := New("", reg, func() any {
		return map[string]any{"health": "normal"}
	})
	require.Equal(t, DefaultAddr, s.Addr)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `prop_reset_requests_total{source="button"} 1`)

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "normal", status["health"])
}

func TestOptionalRoutes(t *testing.T) {
	s := New(":0", nil, nil)
	for _, path := range []string{"/metrics", "/status"} {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
