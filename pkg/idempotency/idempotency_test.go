package idempotency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStoreDoneAndMark(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewStore(rdb, time.Hour)
	events := store.Scope("stripe")
	ctx := context.Background()

	done, err := events.Done(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, mr.Exists("idem:stripe:evt_1"), "checking must not mark")

	require.NoError(t, events.Mark(ctx, "evt_1"))
	assert.True(t, mr.Exists("idem:stripe:evt_1"))
	done, err = events.Done(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, done)

	mr.FastForward(2 * time.Hour)
	done, err = events.Done(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStoreKey(t *testing.T) {
	assert.Equal(t, "idem:payment.events:2:42", NewStore(nil, time.Minute).Key("payment.events", 2, 42))
}

func TestMiddlewareReplaysResponse(t *testing.T) {
	_, rdb := newRedis(t)
	var calls int32
	h := Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
	}))

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set(HeaderKey, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("k1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, `{"call":1}`, first.Body.String())

	second := do("k1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	assert.Equal(t, `{"call":2}`, do("").Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	_, rdb := newRedis(t)
	var calls int32
	h := Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderKey, "k2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	}
	assert.Equal(t, int32(2), calls)
}

func TestMiddlewareInFlightConflict(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("idem:http:POST:/orders:k3", inFlight))
	h := Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set(HeaderKey, "k3")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMiddlewareReleasesKeyAfterPanic(t *testing.T) {
	mr, rdb := newRedis(t)
	var calls int32
	h := Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderKey, "k4")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Panics(t, func() { do() })
	assert.False(t, mr.Exists("idem:http:POST:/orders:k4"))
	assert.Equal(t, http.StatusCreated, do().Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddlewareStoresAfterClientCancel(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil).WithContext(ctx)
	req.Header.Set(HeaderKey, "k5")
	h.ServeHTTP(httptest.NewRecorder(), req)

	raw, err := mr.Get("idem:http:POST:/orders:k5")
	require.NoError(t, err)
	assert.NotEqual(t, inFlight, raw)
	assert.Contains(t, raw, `"status":201`)
}
