package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func saleRequest(key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, "/sales", "/sales", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	return req
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{}, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, saleRequest("", `{"foo":"bar"}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareRejectsMalformedKey(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{ValidKey: func(k string) bool { return len(k) == 4 }}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for a malformed key")
	})
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, saleRequest("abc", `{}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdempotencyMiddlewareReplaysCreatedAsOK(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{}, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"saleId":"s-1"}}`))
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, saleRequest("abc", `{"foo":"bar"}`))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, saleRequest("abc", `{"foo":"bar"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay status 200 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatalf("expected replay header")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":{"saleId":"s-1"}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareReplaysRejection(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{}, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, saleRequest("bad", `{}`))
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422 got %d", i, resp.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), saleRequest("xyz", `{"foo":"bar"}`))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, saleRequest("xyz", `{"foo":"diff"}`))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareServerErrorReleasesClaim(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{}, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, saleRequest("k1", `{}`))
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", first.Code)
	}
	second := httptest.NewRecorder()
	mw(handler).ServeHTTP(second, saleRequest("k1", `{}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected retry to apply with 201, got %d", second.Code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
}

func TestIdempotencyMiddlewareConcurrentDuplicateIsInFlight(t *testing.T) {
	mw := Idempotency(newFakeStore(), IdempotencyOptions{RetryAfter: 2 * time.Second}, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	})

	done := make(chan int, 1)
	go func() {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, saleRequest("dup", `{}`))
		done <- resp.Code
	}()
	<-entered

	dup := httptest.NewRecorder()
	mw(handler).ServeHTTP(dup, saleRequest("dup", `{}`))
	if dup.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for in-flight duplicate, got %d", dup.Code)
	}
	if dup.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", dup.Header().Get("Retry-After"))
	}

	close(release)
	if code := <-done; code != http.StatusCreated {
		t.Fatalf("expected original to complete with 201, got %d", code)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls.Load())
	}
}
