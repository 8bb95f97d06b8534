package handler

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

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var body struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, w.Code == http.StatusOK, body.Success)
	return body.Data
}

func TestHealthHandler(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		h := NewHealthHandler("settlement", "test")
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeHealth(t, w)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "settlement", resp.Name)
		assert.NotEmpty(t, resp.GoVersion)
		assert.Empty(t, resp.Checks)
	})

	t.Run("failing dependency", func(t *testing.T) {
		h := NewHealthHandler("settlement", "test").
			AddCheck("database", func(context.Context) error { return nil }).
			AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

		router := gin.New()
		h.RegisterRoutes(&router.RouterGroup)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decodeHealth(t, w)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "connection refused"}, resp.Checks)
	})
}
