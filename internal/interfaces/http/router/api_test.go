package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var businessDay = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type apiEnv struct {
	engine *gin.Engine
	jwt    *auth.JWTService
	store  *storage.MemoryObjectStorage
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.SetupValidator())

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllSettlementModels()...))

	seq, err := persistence.NewSnowflakeSequencer(3)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	service := appsettlement.NewSettlementService(
		persistence.NewGormTransactionScope(db, seq),
		persistence.NewGormSettlementRepositories(db, seq),
		appsettlement.ServiceConfig{
			Location: time.UTC,
			Now:      func() time.Time { return businessDay.Add(9 * time.Hour) },
		},
		log,
	)
	service.SetAuthorizer(auth.ClaimsAuthorizer{})

	store := storage.NewMemoryObjectStorage()
	exporter := appsettlement.NewLedgerExporter(service, store, "ledger", log)
	jwtService := auth.NewJWTService(config.JWTConfig{Secret: "api-test-secret-0123456789abcdef", Issuer: "storefront-test"})

	engine, err := router.NewEngine(router.Options{
		Logger:         log,
		JWT:            jwtService,
		MaxBodySize:    1 << 20,
		RequestTimeout: 5 * time.Second,
	},
		handler.NewHealthHandler("settlement", "test").AddCheck("database", func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		}),
		handler.NewAgentHandler(service),
		handler.NewOrderHandler(service),
		handler.NewLedgerHandler(service, exporter, time.Hour),
	)
	require.NoError(t, err)

	return &apiEnv{engine: engine, jwt: jwtService, store: store}
}

func (e *apiEnv) token(t *testing.T, perms ...string) string {
	t.Helper()
	token, _, err := e.jwt.Issue(auth.IssueInput{Subject: "ops-" + strings.Join(perms, "+"), Permissions: perms, TTL: time.Hour})
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total    int64 `json:"total"`
		PageSize int   `json:"page_size"`
	} `json:"meta"`
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func dataAs[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestSettlementAPI_EndToEnd(t *testing.T) {
	env := newAPIEnv(t)
	writer := env.token(t, auth.PermSettlementRead, auth.PermSettlementWrite)
	settler := env.token(t, auth.PermSettlementSettle)
	exporter := env.token(t, auth.PermLedgerExport)
	const day = "2024-03-10"

	status, _ := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp := env.do(t, http.MethodPost, "/api/v1/agents", "", map[string]any{"name": "Rami", "serial_number": 1})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	status, resp = env.do(t, http.MethodPost, "/api/v1/agents", writer, map[string]any{"name": "Rami", "phone": "0100", "serial_number": 1})
	require.Equal(t, http.StatusCreated, status)
	agent := dataAs[map[string]any](t, resp)
	agentID := agent["id"].(string)

	status, resp = env.do(t, http.MethodPost, "/api/v1/orders", writer, map[string]any{
		"customer_id": uuid.NewString(),
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "name": "Lamp", "quantity": 1, "unit_price": "100"},
		},
		"customer_shipping_cost": "20",
	})
	require.Equal(t, http.StatusCreated, status)
	orderID := dataAs[map[string]any](t, resp)["id"].(string)

	status, _ = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/assign", writer, map[string]any{
		"agent_id": agentID, "agent_shipping_cost": "10",
	})
	require.Equal(t, http.StatusOK, status)

	status, resp = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/assign", writer, map[string]any{
		"agent_id": agentID, "agent_shipping_cost": "10",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_ASSIGNED", resp.Error.Code)

	status, resp = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/deliver", writer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "delivered", dataAs[map[string]any](t, resp)["status"])

	status, resp = env.do(t, http.MethodGet, "/api/v1/agents/"+agentID+"/balance?date="+day, writer, nil)
	require.Equal(t, http.StatusOK, status)
	balance := dataAs[map[string]any](t, resp)
	assert.Equal(t, "110", balance["owed"])
	assert.Equal(t, "110", balance["delivered"])
	assert.Equal(t, "0", balance["receivable"])
	assert.Equal(t, day, balance["date"])

	status, resp = env.do(t, http.MethodGet, "/api/v1/agents/"+agentID+"/ledger?page_size=1", writer, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(2), resp.Meta.Total)
	assert.Len(t, dataAs[[]map[string]any](t, resp), 1)

	status, resp = env.do(t, http.MethodPost, "/api/v1/agents/"+agentID+"/settle", writer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	status, _ = env.do(t, http.MethodPost, "/api/v1/agents/"+agentID+"/settle", settler, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = env.do(t, http.MethodGet, "/api/v1/ledger/days/"+day, writer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, dataAs[[]map[string]any](t, resp))

	status, resp = env.do(t, http.MethodGet, "/api/v1/ledger/exports/"+day, exporter, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = env.do(t, http.MethodPost, "/api/v1/ledger/exports/"+day, exporter, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ledger/2024/03/10.jsonl", dataAs[map[string]any](t, resp)["key"])
	assert.Equal(t, []string{"ledger/2024/03/10.jsonl"}, env.store.Keys())

	status, resp = env.do(t, http.MethodGet, "/api/v1/ledger/exports/"+day+"?expires_in=30m", exporter, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(dataAs[map[string]any](t, resp)["url"].(string), "memory://"))

	status, _ = env.do(t, http.MethodGet, "/api/v1/ledger/exports/"+day, writer, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestSettlementAPI_Validation(t *testing.T) {
	env := newAPIEnv(t)
	writer := env.token(t, auth.PermSettlementWrite)

	status, resp := env.do(t, http.MethodPost, "/api/v1/agents", writer, map[string]any{"name": "Noor", "serial_number": 2})
	require.Equal(t, http.StatusCreated, status)
	agentID := dataAs[map[string]any](t, resp)["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"three decimal payment", http.MethodPost, "/api/v1/agents/" + agentID + "/payments", map[string]any{"amount": "1.234"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative payment", http.MethodPost, "/api/v1/agents/" + agentID + "/payments", map[string]any{"amount": "-4"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad payment date", http.MethodPost, "/api/v1/agents/" + agentID + "/payments", map[string]any{"amount": "4", "date": "2024-13-01"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown agent", http.MethodGet, "/api/v1/agents/" + uuid.NewString(), nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad agent id", http.MethodGet, "/api/v1/agents/abc", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad balance date", http.MethodGet, "/api/v1/agents/" + agentID + "/balance?date=yesterday", nil, http.StatusBadRequest, "INVALID_DATE"},
		{"deliver unknown order", http.MethodPost, "/api/v1/orders/" + uuid.NewString() + "/deliver", nil, http.StatusNotFound, "NOT_FOUND"},
		{"order without items", http.MethodPost, "/api/v1/orders", map[string]any{"customer_id": uuid.NewString(), "items": []any{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, tt.method, tt.path, writer, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	t.Run("payment recorded", func(t *testing.T) {
		status, resp := env.do(t, http.MethodPost, "/api/v1/agents/"+agentID+"/payments", writer, map[string]any{"amount": "25.50", "note": "cash"})
		require.Equal(t, http.StatusCreated, status)
		entry := dataAs[map[string]any](t, resp)
		assert.Equal(t, "PAYMENT", entry["type"])
		assert.Equal(t, "2024-03-10", entry["attribution_date"])
	})
}

func TestSettlementAPI_Download(t *testing.T) {
	env := newAPIEnv(t)
	writer := env.token(t, auth.PermSettlementWrite)
	exporter := env.token(t, auth.PermLedgerExport)

	_, resp := env.do(t, http.MethodPost, "/api/v1/agents", writer, map[string]any{"name": "Sami", "serial_number": 3})
	agentID := dataAs[map[string]any](t, resp)["id"].(string)
	status, _ := env.do(t, http.MethodPost, "/api/v1/agents/"+agentID+"/payments", writer, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusCreated, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/days/2024-03-10/download", nil)
	req.Header.Set("Authorization", "Bearer "+exporter)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, agentID, entry["agent_id"])
}
