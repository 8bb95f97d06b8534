package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func bodyLimitRouter(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), BodyLimit(limit))
	r.POST("/agents/:id/payments", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusBadRequest, "body too large")
			return
		}
		c.String(http.StatusCreated, "ok")
	})
	return r
}

func TestBodyLimit(t *testing.T) {
	payment := `{"amount":"12.50","date":"2026-03-01"}`

	tests := []struct {
		name          string
		limit         int64
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"within limit", 1024, payment, int64(len(payment)), http.StatusCreated},
		{"declared length over limit", 16, payment, int64(len(payment)), http.StatusRequestEntityTooLarge},
		{"streamed body over limit", 16, payment, -1, http.StatusBadRequest},
		{"disabled", 0, strings.Repeat("x", 4096), 4096, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/agents/a-1/payments", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			bodyLimitRouter(tt.limit).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
				assert.Contains(t, w.Body.String(), w.Header().Get(RequestIDHeader))
			}
		})
	}
}
