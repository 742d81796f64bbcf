package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quotedesk-backend/internal/quotes"
	"github.com/angelmondragon/quotedesk-backend/internal/sequence"
	"github.com/angelmondragon/quotedesk-backend/internal/stock"
	pkgauth "github.com/angelmondragon/quotedesk-backend/pkg/auth"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
)

type memoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) RateLimitKey(parts ...string) string {
	key := "test:rl"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

type harness struct {
	t      *testing.T
	cfg    *config.Config
	client *db.Client
	router http.Handler
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "quotedesk-test", ExpirationMinutes: 5},
		API: config.APIConfig{
			CORSOrigins:           []string{"http://localhost:3000"},
			QuoteCreateWindow:     time.Minute,
			QuoteCreateIPLimit:    100,
			QuoteCreateActorLimit: 100,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})

	alloc, err := sequence.NewAllocator(client.DB(), sequence.DefaultName)
	require.NoError(t, err)
	ledger, err := stock.NewLedger(client.DB(), client, logg)
	require.NoError(t, err)
	svc, err := quotes.NewService(quotes.ServiceParams{
		Repo:    quotes.NewRepository(client.DB()),
		Tx:      client,
		Numbers: alloc,
		Stock:   ledger,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:  logg,
	})
	require.NoError(t, err)

	router := NewRouter(cfg, logg, client, newMemoryStore(), svc, ledger, http.NotFoundHandler())
	return &harness{t: t, cfg: cfg, client: client, router: router}
}

func (h *harness) token(actorID string, role enums.ActorRole) string {
	h.t.Helper()
	token, err := pkgauth.MintAccessToken(h.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{ActorID: actorID, Role: role})
	require.NoError(h.t, err)
	return token
}

func (h *harness) product(price string, available int) models.Product {
	h.t.Helper()
	p := models.Product{SKU: "SKU-" + uuid.NewString()[:8], Name: "Widget", UnitPrice: decimal.RequireFromString(price), AvailableStock: available}
	require.NoError(h.t, h.client.DB().Create(&p).Error)
	return p
}

func (h *harness) stockOf(id uuid.UUID) int {
	h.t.Helper()
	var p models.Product
	require.NoError(h.t, h.client.DB().First(&p, "id = ?", id).Error)
	return p.AvailableStock
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code       string          `json:"code"`
		Message    string          `json:"message"`
		Details    json.RawMessage `json:"details"`
		Resolution string          `json:"resolution"`
	} `json:"error"`
}

func (h *harness) do(method, path, token, idemKey string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func createBody(lines ...map[string]any) map[string]any {
	return map[string]any{
		"customer":  map[string]any{"name": "Ada Client", "email": "ada@example.com"},
		"lineItems": lines,
	}
}

func line(id uuid.UUID, qty int) map[string]any {
	return map[string]any{"productId": id.String(), "quantity": qty}
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(http.MethodGet, "/health/live", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodGet, "/health/ready", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), `"database":"ok"`)
}

func TestAuthAndRoleGates(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodGet, "/api/admin/v1/quotes", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, env = h.do(http.MethodGet, "/api/admin/v1/quotes", h.token("cust-1", enums.ActorRoleCustomer), "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = h.do(http.MethodGet, "/api/admin/v1/quotes", h.token("quoter-1", enums.ActorRoleQuoter), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPost, "/api/admin/v1/quotes/"+uuid.NewString()+"/authorize", h.token("quoter-1", enums.ActorRoleQuoter), "k1", map[string]any{"clientEmail": "a@b.co"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQuoteLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	a := h.product("10.00", 10)
	b := h.product("25.00", 5)
	customer := h.token("cust-1", enums.ActorRoleCustomer)
	quoter := h.token("quoter-1", enums.ActorRoleQuoter)
	admin := h.token("admin-1", enums.ActorRoleAdmin)

	rec, env := h.do(http.MethodPost, "/api/v1/quotes", customer, "create-1", createBody(line(a.ID, 3), line(b.ID, 1)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created quotes.QuoteDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.True(t, decimal.RequireFromString("55.00").Equal(created.Total))
	require.Equal(t, enums.QuoteStatusPending, created.Status)

	// replay returns the first response without allocating a new number
	rec, env = h.do(http.MethodPost, "/api/v1/quotes", customer, "create-1", createBody(line(a.ID, 3), line(b.ID, 1)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var replayed quotes.QuoteDTO
	require.NoError(t, json.Unmarshal(env.Data, &replayed))
	require.Equal(t, created.ID, replayed.ID)

	base := "/api/admin/v1/quotes/" + created.ID.String()

	rec, env = h.do(http.MethodPost, base+"/authorize", admin, "auth-early", map[string]any{"clientEmail": "buyer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, "pending quotes may be authorized directly")

	rec, env = h.do(http.MethodPost, base+"/authorize", admin, "auth-again", map[string]any{"clientEmail": "buyer@example.com"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_PROCESSED", env.Error.Code)
	require.Equal(t, 7, h.stockOf(a.ID))
	require.Equal(t, 4, h.stockOf(b.ID))

	rec, env = h.do(http.MethodPost, base+"/reject", quoter, "reject-late", map[string]any{"reason": "too late"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "STATE_CONFLICT", env.Error.Code)

	rec, _ = h.do(http.MethodPost, base+"/complete", admin, "complete-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/v1/quotes/"+created.ID.String()+"/history", customer, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []quotes.TransitionDTO
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 3)

	rec, env = h.do(http.MethodGet, "/api/v1/quotes/"+created.ID.String()+"/document", customer, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), `"statusLabel":"Completed"`)
}

func TestStaffFlowSendApproveAuthorize(t *testing.T) {
	h := newHarness(t, nil)
	a := h.product("10.00", 2)
	customer := h.token("cust-1", enums.ActorRoleCustomer)
	quoter := h.token("quoter-1", enums.ActorRoleQuoter)
	admin := h.token("admin-1", enums.ActorRoleAdmin)

	_, env := h.do(http.MethodPost, "/api/v1/quotes", customer, "c1", createBody(line(a.ID, 2)))
	var created quotes.QuoteDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	base := "/api/admin/v1/quotes/" + created.ID.String()

	rec, _ := h.do(http.MethodPost, base+"/send", quoter, "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, base+"/authorize", admin, "a0", map[string]any{"clientEmail": "buyer@example.com"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "sent quotes need approval first")
	require.Equal(t, "STATE_CONFLICT", env.Error.Code)

	rec, _ = h.do(http.MethodPost, base+"/approve", quoter, "ap1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// drain stock so authorization cannot be covered
	require.NoError(t, h.client.DB().Model(&models.Product{}).Where("id = ?", a.ID).Update("available_stock", 1).Error)

	rec, env = h.do(http.MethodPost, base+"/authorize", admin, "a1", map[string]any{"clientEmail": "buyer@example.com"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	require.Contains(t, string(env.Error.Details), a.ID.String())
	require.Equal(t, 1, h.stockOf(a.ID))

	rec, _ = h.do(http.MethodPost, "/api/admin/v1/products/"+a.ID.String()+"/restock", admin, "r1", map[string]any{"quantity": 5, "reason": "supplier delivery"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, base+"/authorize", admin, "a2", map[string]any{"clientEmail": "buyer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 4, h.stockOf(a.ID))

	rec, env = h.do(http.MethodGet, "/api/admin/v1/products/"+a.ID.String()+"/movements", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), `"kind":"authorization_decrement"`)
	require.Contains(t, string(env.Data), `"kind":"restock"`)

	rec, env = h.do(http.MethodGet, "/api/admin/v1/quotes/by-number/1", quoter, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), `"status":"authorized"`)

	rec, env = h.do(http.MethodGet, "/api/admin/v1/quotes?status=authorized", quoter, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), created.ID.String())
}

func TestCustomersCannotReadOthersQuotes(t *testing.T) {
	h := newHarness(t, nil)
	a := h.product("10.00", 2)

	_, env := h.do(http.MethodPost, "/api/v1/quotes", h.token("cust-1", enums.ActorRoleCustomer), "c1", createBody(line(a.ID, 1)))
	var created quotes.QuoteDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env := h.do(http.MethodGet, "/api/v1/quotes/"+created.ID.String(), h.token("cust-2", enums.ActorRoleCustomer), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateRequiresIdempotencyKeyAndIsRateLimited(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.API.QuoteCreateActorLimit = 1 })
	a := h.product("10.00", 2)
	customer := h.token("cust-1", enums.ActorRoleCustomer)

	rec, env := h.do(http.MethodPost, "/api/v1/quotes", customer, "", createBody(line(a.ID, 1)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = h.do(http.MethodPost, "/api/v1/quotes", customer, "rl-1", createBody(line(a.ID, 1)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/quotes", customer, "rl-2", createBody(line(a.ID, 1)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	require.Equal(t, "retry", env.Error.Resolution)
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	a := h.product("10.00", 2)
	b := h.product("5.00", 0)

	rec, env := h.do(http.MethodPost, "/api/v1/stock/availability", h.token("cust-1", enums.ActorRoleCustomer), "", map[string]any{
		"items": []map[string]any{line(a.ID, 2), line(b.ID, 1)},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var availability stock.Availability
	require.NoError(t, json.Unmarshal(env.Data, &availability))
	require.False(t, availability.AllInStock)
	require.True(t, availability.SomeInStock)
	require.Equal(t, 2, availability.PerItemAvailable[a.ID])
}
