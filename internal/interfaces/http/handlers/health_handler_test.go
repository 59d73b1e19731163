package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, register func(*gin.Engine), method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("v1.2.3")
	w := serve(t, func(r *gin.Engine) { r.GET("/healthz", h.Liveness) }, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestHealthHandler_ReadinessNoCheckers(t *testing.T) {
	h := NewHealthHandler("dev")
	w := serve(t, func(r *gin.Engine) { r.GET("/readyz", h.Readiness) }, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}

func TestHealthHandler_ReadinessAllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	h := NewHealthHandler("dev", CheckerFunc("postgres", ok), CheckerFunc("redis", ok))
	w := serve(t, func(r *gin.Engine) { r.GET("/readyz", h.Readiness) }, http.MethodGet, "/readyz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Len(t, resp.Components, 2)
}

func TestHealthHandler_ReadinessUnhealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckerFunc("postgres", func(context.Context) error { return nil }),
		CheckerFunc("kafka", func(context.Context) error { return errors.New("no brokers") }),
	)
	w := serve(t, func(r *gin.Engine) { r.GET("/readyz", h.Readiness) }, http.MethodGet, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["kafka"].Status)
	assert.Equal(t, "no brokers", resp.Components["kafka"].Error)
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)
}
