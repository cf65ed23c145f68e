package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

const (
	// HeaderIdempotencyKey carries the client's idempotency key.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay is set on responses served from a stored record.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	defaultIdempotencyTTL = 30 * 24 * time.Hour
	defaultClaimTTL       = 30 * time.Second
	defaultRetryAfter     = time.Second

	recordPending  = "pending"
	recordComplete = "complete"
)

// IdempotencyOptions tune how long claims and stored responses live.
type IdempotencyOptions struct {
	// TTL keeps completed responses available for replay.
	TTL time.Duration
	// ClaimTTL bounds how long an in-progress claim blocks other requests
	// with the same key if the handler never finishes.
	ClaimTTL time.Duration
	// RetryAfter is advertised to requests that hit an in-progress claim.
	RetryAfter time.Duration
	// ValidKey rejects malformed keys before anything is claimed.
	ValidKey func(string) bool
}

type idempotencyRecord struct {
	State       string            `json:"state"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency applies each key at most once. The key is claimed with SETNX
// before the handler runs, so concurrent duplicates never reach it: they get
// 503 with Retry-After while the claim is open, and the stored response once
// it completes. A stored 201 is replayed as 200. Handler failures (5xx)
// release the claim so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, opts IdempotencyOptions, logg *logger.Logger) func(http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = defaultIdempotencyTTL
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = defaultClaimTTL
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if idempotencyKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			if opts.ValidKey != nil && !opts.ValidKey(idempotencyKey) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is malformed"))
				return
			}
			if logg != nil {
				ctx = logg.WithIdempotencyKey(ctx, idempotencyKey)
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			claim, _ := json.Marshal(idempotencyRecord{State: recordPending, RequestHash: requestHash})
			claimed, err := store.SetNX(ctx, key, string(claim), opts.ClaimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				serveExisting(ctx, logg, w, store, key, requestHash, opts.RetryAfter)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			// the response is already on the wire; persist even if the client left
			persistCtx := context.WithoutCancel(ctx)
			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(persistCtx, key); delErr != nil {
					logError(persistCtx, logg, "release idempotency claim", delErr)
				}
				return
			}

			record := idempotencyRecord{
				State:       recordComplete,
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}

			payload, marshalErr := json.Marshal(record)
			if marshalErr != nil {
				logError(persistCtx, logg, "marshal idempotency record", marshalErr)
				return
			}
			if setErr := store.Set(persistCtx, key, string(payload), opts.TTL); setErr != nil {
				logError(persistCtx, logg, "persist idempotency record", setErr)
			}
		})
	}
}

func serveExisting(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, requestHash string, retryAfter time.Duration) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) {
		// claim expired between SETNX and GET; let the client come back
		writeInFlight(ctx, logg, w, retryAfter)
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	record, err := decodeRecord(stored)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.State != recordComplete {
		writeInFlight(ctx, logg, w, retryAfter)
		return
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "status", record.Status), "idempotency.replayed")
	}
	writeStoredResponse(w, record)
}

func writeInFlight(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTransientSync, "request with this idempotency key is still in progress"))
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{r.Method, routePattern(r)}, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(HeaderIdempotentReplay, "true")
	status := record.Status
	if status == http.StatusCreated {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
