package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const checkoutPath = "/api/v1/billing/checkout"

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func asUser(req *http.Request, user *models.User) *http.Request {
	ctx := WithCaller(req.Context(), users.UserCaller("user_"+user.ID.String(), user), user)
	return req.WithContext(ctx)
}

func checkoutRequest(key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, checkoutPath, checkoutPath, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
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

func TestUnlistedRoutesPassThrough(t *testing.T) {
	store := newFakeStore()
	called := false
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := requestWithPattern(http.MethodPut, "/api/v1/progress/x", "/api/v1/progress/{videoId}", strings.NewReader(`{}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
	assert.Empty(t, store.data)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	h := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest(strings.Repeat("k", maxKeyLen+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	user := &models.User{ID: uuid.New()}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://checkout.stripe.test/1"}`))
	}))

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, asUser(checkoutRequest("abc", `{}`), user))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		bodies = append(bodies, rec.Body.String())
		if i == 1 {
			assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
		}
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, bodies[0], bodies[1])
	for _, ttl := range store.ttls {
		assert.Equal(t, 24*time.Hour, ttl)
	}
}

func TestIdempotencyRefusesInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	var h http.Handler
	inner := 0
	h = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner++
		dup := httptest.NewRecorder()
		if inner == 1 {
			h.ServeHTTP(dup, checkoutRequest("dup", `{}`))
			assert.Equal(t, http.StatusConflict, dup.Code)
			assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, dup))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("dup", `{}`))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, inner)
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	calls := 0
	h := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []*models.User{{ID: uuid.New()}, {ID: uuid.New()}} {
		h.ServeHTTP(httptest.NewRecorder(), asUser(checkoutRequest("same", `{}`), user))
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, checkoutRequest("retry", `{}`))
	assert.Equal(t, http.StatusBadGateway, first.Code)
	assert.Empty(t, store.data)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, checkoutRequest("retry", `{}`))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyDetectsChangedRequest(t *testing.T) {
	h := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), checkoutRequest("xyz", `{"plan":"monthly"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("xyz", `{"plan":"yearly"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}
