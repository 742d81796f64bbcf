package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgauth "github.com/angelmondragon/quotedesk-backend/pkg/auth"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
)

// replayMap is an in-memory ReplayStore.
type replayMap map[string]string

func (m replayMap) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m replayMap) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, taken := m[key]; taken {
		return false, nil
	}
	m[key] = value.(string)
	return true, nil
}

func (m replayMap) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

func (m replayMap) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (m replayMap) IdempotencyKey(scope, id string) string { return scope + "#" + id }

type idemCall struct {
	path  string
	key   string
	body  string
	actor string
}

func (c idemCall) serve(store replayMap, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, c.path, strings.NewReader(c.body))
	if c.key != "" {
		req.Header.Set(IdempotencyKeyHeader, c.key)
	}
	if c.actor != "" {
		req = req.WithContext(WithIdentity(req.Context(), pkgauth.Identity{ActorID: c.actor, Role: enums.ActorRoleCustomer}))
	}
	rec := httptest.NewRecorder()
	Idempotency(store, nil)(next).ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	cases := map[string]struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		"create quote":          {http.MethodPost, "/api/v1/quotes", defaultIdempotencyTTL, true},
		"create trailing slash": {http.MethodPost, "/api/v1/quotes/", defaultIdempotencyTTL, true},
		"authorize pattern":     {http.MethodPost, "/api/admin/v1/quotes/{quoteId}/authorize", criticalIdempotencyTTL, true},
		"authorize concrete":    {http.MethodPost, "/api/admin/v1/quotes/5b0e/authorize", criticalIdempotencyTTL, true},
		"complete":              {http.MethodPost, "/api/admin/v1/quotes/q/complete", criticalIdempotencyTTL, true},
		"reject":                {http.MethodPost, "/api/admin/v1/quotes/q/reject", defaultIdempotencyTTL, true},
		"restock":               {http.MethodPost, "/api/admin/v1/products/p/restock", criticalIdempotencyTTL, true},
		"read":                  {http.MethodGet, "/api/v1/quotes/q", 0, false},
		"availability":          {http.MethodPost, "/api/v1/stock/availability", 0, false},
		"extra segment":         {http.MethodPost, "/api/admin/v1/quotes/q/authorize/now", 0, false},
		"empty param":           {http.MethodPost, "/api/admin/v1/quotes//authorize", 0, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ttl, ok := routeTTL(tc.method, tc.path)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, ttl)
		})
	}
}

func TestIdempotencyRequiresKey(t *testing.T) {
	rec := idemCall{path: "/api/v1/quotes", body: `{}`}.serve(replayMap{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a key")
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := replayMap{}
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"customerName":"Acme"}`, string(body), "body must be readable downstream")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"quoteNumber":1001}`))
	})
	call := idemCall{path: "/api/v1/quotes", key: "k-1", body: `{"customerName":"Acme"}`}

	first := call.serve(store, handler)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := call.serve(store, handler)
	require.Equal(t, 1, calls)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.JSONEq(t, `{"quoteNumber":1001}`, second.Body.String())
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	store := replayMap{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	idemCall{path: "/api/v1/quotes", key: "k-2", body: `{"a":1}`}.serve(store, ok)
	rec := idemCall{path: "/api/v1/quotes", key: "k-2", body: `{"a":2}`}.serve(store, ok)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyBlocksInFlightDuplicate(t *testing.T) {
	store := replayMap{}
	call := idemCall{path: "/api/admin/v1/quotes/q1/authorize", key: "k-3", body: `{}`}
	var dup *httptest.ResponseRecorder

	call.serve(store, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		dup = call.serve(store, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate reached the handler while the first request was running")
		}))
		w.WriteHeader(http.StatusOK)
	}))

	require.NotNil(t, dup)
	require.Equal(t, http.StatusConflict, dup.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, dup))
}

func TestIdempotencyReleasesKey(t *testing.T) {
	t.Run("on panic", func(t *testing.T) {
		store := replayMap{}
		require.Panics(t, func() {
			idemCall{path: "/api/v1/quotes", key: "k-4", body: `{}`}.serve(store, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			}))
		})
		require.Empty(t, store)
	})

	t.Run("on server error", func(t *testing.T) {
		store := replayMap{}
		calls := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		call := idemCall{path: "/api/admin/v1/quotes/q1/authorize", key: "k-5", body: `{}`}
		require.Equal(t, http.StatusServiceUnavailable, call.serve(store, handler).Code)
		require.Equal(t, http.StatusOK, call.serve(store, handler).Code)
		require.Equal(t, 2, calls)
		require.Len(t, store, 1)
	})
}

func TestIdempotencyKeysArePerActor(t *testing.T) {
	store := replayMap{}
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	for _, actor := range []string{"user-a", "user-b"} {
		idemCall{path: "/api/v1/quotes", key: "shared", body: `{}`, actor: actor}.serve(store, handler)
	}
	require.Equal(t, 2, calls)
}
