package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// IdempotencyKeyHeader carries the client supplied replay key.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = time.Minute
	maxKeyLen  = 128
)

// idempotentRoutes maps "METHOD pattern" to how long a response is replayable.
// Checkout replays live as long as a Stripe checkout session.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/billing/checkout": 24 * time.Hour,
	"POST /api/v1/billing/portal":   time.Hour,
	"POST /api/admin/v1/videos":     24 * time.Hour,
}

// IdempotencyStore is the subset of pkg/redis.Client the middleware needs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type replayRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes the listed routes safe to retry. The first request with a
// key claims it, concurrent duplicates are refused, and completed responses
// are replayed byte for byte. Server errors release the key.
func Idempotency(store IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := idempotentRoutes[r.Method+" "+routePattern(r)]
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" || len(clientKey) > maxKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (max 128 chars)"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r, body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			claimed, err := claimKey(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				existing, err := loadRecord(ctx, store, key)
				switch {
				case err != nil:
					responses.WriteError(ctx, logg, w, err)
				case existing == nil:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key expired mid-flight; retry"))
				case existing.RequestHash != hash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
				case existing.Pending:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is in progress"))
				default:
					replay(w, existing)
				}
				return
			}

			rec := &bodyRecorder{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(rec, r)

			// Detached so a client hang-up still settles the key.
			settleCtx := context.WithoutCancel(ctx)
			if rec.Status() >= http.StatusInternalServerError {
				if err := store.Del(settleCtx, key); err != nil && logg != nil {
					logg.Error(settleCtx, "idempotency.release_failed", err)
				}
				return
			}
			payload, _ := json.Marshal(replayRecord{
				RequestHash: hash,
				Status:      rec.Status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err := store.Set(settleCtx, key, string(payload), ttl); err != nil && logg != nil {
				logg.Error(settleCtx, "idempotency.store_failed", err)
			}
		})
	}
}

func claimKey(ctx context.Context, store IdempotencyStore, key, hash string) (bool, error) {
	pending, _ := json.Marshal(replayRecord{Pending: true, RequestHash: hash})
	ok, err := store.SetNX(ctx, key, string(pending), pendingTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func loadRecord(ctx context.Context, store IdempotencyStore, key string) (*replayRecord, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &record, nil
}

func replay(w http.ResponseWriter, record *replayRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

// replayScope keeps keys private to one caller and one route.
func replayScope(r *http.Request) string {
	caller := CallerFromContext(r.Context())
	return strings.Join([]string{string(caller.Kind), UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.URL.RawQuery))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
