package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// testContext returns a context carrying a request and the request id
func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	c.Set(middleware.RequestIDKey, "req-base")
	return c, w
}

func TestBaseHandler_Replies(t *testing.T) {
	h := &BaseHandler{}

	t.Run("page", func(t *testing.T) {
		c, w := testContext()
		h.SuccessWithMeta(c, []string{"agent-1", "agent-2"}, 41, 2, 20)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, dto.Meta{Total: 41, Page: 2, PageSize: 20, TotalPages: 3}, *resp.Meta)
	})

	t.Run("created", func(t *testing.T) {
		c, w := testContext()
		h.Created(c, gin.H{"serial_number": 7})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Error)
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"missing agent":    {shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		"wrapped conflict": {fmt.Errorf("assign: %w", shared.NewDomainError("ALREADY_ASSIGNED", "taken")), http.StatusConflict, "ALREADY_ASSIGNED"},
		"bad transition":   {shared.NewDomainError("INVALID_STATE", "order is cancelled"), http.StatusUnprocessableEntity, "INVALID_STATE"},
		"settle refused":   {shared.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		"database outage":  {fmt.Errorf("lock agent: connection reset"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, w := testContext()
			(&BaseHandler{}).HandleError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Equal(t, "req-base", resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "connection reset")
		})
	}
}

func TestBaseHandler_PathAndQueryParsing(t *testing.T) {
	h := &BaseHandler{}
	engine := gin.New()
	engine.GET("/agents/:id/balance", func(c *gin.Context) {
		id, ok := h.ParseUUID(c, "id")
		if !ok {
			return
		}
		day, ok := h.ParseDay(c, c.Query("date"))
		if !ok {
			return
		}
		out := id.String()
		if day != nil {
			out += "@" + day.Format("2006-01-02")
		}
		c.String(http.StatusOK, out)
	})

	id := uuid.New()
	cases := map[string]struct {
		target string
		status int
		body   string
		code   string
	}{
		"all time":     {target: "/agents/" + id.String() + "/balance", status: http.StatusOK, body: id.String()},
		"one day":      {target: "/agents/" + id.String() + "/balance?date=2024-03-10", status: http.StatusOK, body: id.String() + "@2024-03-10"},
		"bad id":       {target: "/agents/42/balance", status: http.StatusBadRequest, code: dto.ErrCodeBadRequest},
		"foreign date": {target: "/agents/" + id.String() + "/balance?date=10.03.2024", status: http.StatusBadRequest, code: "INVALID_DATE"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.target, nil))

			require.Equal(t, tc.status, w.Code)
			if tc.code == "" {
				assert.Equal(t, tc.body, w.Body.String())
				return
			}
			assert.Equal(t, tc.code, decodeResponse(t, w).Error.Code)
		})
	}
}

func TestPageOf(t *testing.T) {
	page, size := pageOf(0, 0, 20)
	assert.Equal(t, [2]int{1, 20}, [2]int{page, size})

	page, size = pageOf(3, 5, 20)
	assert.Equal(t, [2]int{3, 5}, [2]int{page, size})
}
