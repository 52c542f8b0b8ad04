package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	inFlight = "in_progress"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays the stored response of a request that carried the same
// Idempotency-Key. Requests without the header pass through. Server errors
// are not stored, so the client may retry them.
func Middleware(log *slog.Logger, rdb redis.UniversalClient, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			rkey := "idem:http:" + r.Method + ":" + r.URL.Path + ":" + key

			ok, err := rdb.SetNX(ctx, rkey, inFlight, ttl).Result()
			if err != nil {
				log.Warn("idempotency store unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				replay(w, r, log, rdb, rkey)
				return
			}

			// The client may have gone away; the key must still be settled.
			bg := context.WithoutCancel(ctx)
			stored := false
			defer func() {
				if !stored {
					_ = rdb.Del(bg, rkey).Err()
				}
			}()

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				return
			}
			raw, err := json.Marshal(storedResponse{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()})
			if err == nil {
				err = rdb.Set(bg, rkey, raw, ttl).Err()
			}
			if err != nil {
				log.Warn("idempotency store write failed", "key", key, "err", err)
				return
			}
			stored = true
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, log *slog.Logger, rdb redis.UniversalClient, rkey string) {
	raw, err := rdb.Get(r.Context(), rkey).Bytes()
	if errors.Is(err, redis.Nil) || string(raw) == inFlight {
		http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
		return
	}
	if err != nil {
		log.Warn("idempotency store read failed", "err", err)
		http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
		return
	}
	var resp storedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		http.Error(w, "corrupt idempotency record", http.StatusInternalServerError)
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
