package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stocksync-backend/pkg/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotentReplayHdr  = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255

	ledgerReplayTTL = 24 * time.Hour
	orderReplayTTL  = 7 * 24 * time.Hour
	// inflightTTL bounds how long a crashed request can block its key.
	inflightTTL = 30 * time.Second
)

type idempotentRoute struct {
	method string
	path   *regexp.Regexp
	ttl    time.Duration
}

// Mutations that move stock or create orders must be safe to retry from
// flaky POS clients. Order creation and cancellation keep their replay
// record longer since marketplaces resend those for days.
var idempotentRoutes = []idempotentRoute{
	{http.MethodPost, regexp.MustCompile(`^/api/v1/orders$`), orderReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/orders/[^/]+/cancel$`), orderReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/orders/[^/]+/status$`), ledgerReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/inventory/[^/]+/adjust$`), ledgerReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/channels/[^/]+/stock$`), ledgerReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/listings$`), ledgerReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/products$`), ledgerReplayTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/sync/process$`), ledgerReplayTTL},
}

func replayTTL(method, path string) (time.Duration, bool) {
	path = strings.TrimSuffix(path, "/")
	for _, route := range idempotentRoutes {
		if route.method == method && route.path.MatchString(path) {
			return route.ttl, true
		}
	}
	return 0, false
}

// storedResponse is what a replay writes back.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes above. Keys are scoped per operator and path. A duplicate that
// arrives while the first is still running gets 409, and 5xx results are not
// stored so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := strings.Join([]string{OperatorIDFromContext(ctx), r.Method, r.URL.Path}, "|")
			resultKey := store.IdempotencyKey(scope, clientKey)
			lockKey := resultKey + ":inflight"
			fingerprint := fingerprintBody(body)

			replayed, err := replayIfStored(w, r, store, resultKey, fingerprint)
			if err != nil || replayed {
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
				}
				return
			}

			claimed, err := store.SetNX(ctx, lockKey, RequestIDFromContext(ctx), inflightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				// the first request may have finished between the two lookups
				if replayed, err := replayIfStored(w, r, store, resultKey, fingerprint); err != nil || replayed {
					if err != nil {
						responses.WriteError(ctx, logg, w, err)
					}
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				return
			}
			defer func() {
				if err := store.Del(ctx, lockKey); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency claim", err)
				}
			}()

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			record, err := json.Marshal(storedResponse{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(captured.Bytes()),
			})
			if err == nil {
				_, err = store.SetNX(ctx, resultKey, string(record), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", clientKey), "persist idempotent response", err)
			}
		})
	}
}

// replayIfStored writes the stored response for key, if any. A stored
// response for a different body is a key reuse error.
func replayIfStored(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.Fingerprint != fingerprint {
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body")
	}
	body, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(idempotentReplayHdr, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(body)
	return true, nil
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
