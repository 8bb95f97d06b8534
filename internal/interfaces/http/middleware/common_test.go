package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serve runs one request through engine and returns the recorder
func serve(engine http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/agents", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	cases := map[string]struct {
		sent     string
		wantSame bool
	}{
		"missing":   {sent: ""},
		"client":    {sent: "ledger-run-42", wantSame: true},
		"oversized": {sent: strings.Repeat("r", MaxRequestIDLength+1)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			header := http.Header{}
			if tc.sent != "" {
				header.Set(RequestIDHeader, tc.sent)
			}
			w := serve(engine, http.MethodGet, "/agents", header)

			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, got, w.Body.String(), "handler sees the echoed id")
			if tc.wantSame {
				assert.Equal(t, tc.sent, got)
				return
			}
			_, err := uuid.Parse(got)
			require.NoError(t, err)
		})
	}
}

func TestSecure(t *testing.T) {
	engine := gin.New()
	engine.Use(Secure())
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	h := serve(engine, http.MethodGet, "/health", nil).Header()
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
}

func TestTimeout(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Timeout(10*time.Millisecond))
	engine.GET("/ledger/verify", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	engine.GET("/ledger/days", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		assert.True(t, hasDeadline)
		c.Status(http.StatusOK)
	})

	w := serve(engine, http.MethodGet, "/ledger/verify", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), `"REQUEST_TIMEOUT"`)

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ledger/days", nil).Code)

	t.Run("disabled", func(t *testing.T) {
		engine := gin.New()
		engine.Use(Timeout(0))
		engine.GET("/ledger/days", func(c *gin.Context) {
			_, hasDeadline := c.Request.Context().Deadline()
			assert.False(t, hasDeadline)
			c.Status(http.StatusOK)
		})
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ledger/days", nil).Code)
	})
}
