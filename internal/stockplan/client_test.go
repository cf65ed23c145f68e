package stockplan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://stock.test/", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestPlanReturnsBreakdown(t *testing.T) {
	var capturedURL string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		var body Request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ProductID != "rice-5kg" || body.Quantity != 3 {
			t.Fatalf("unexpected request %+v", body)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"productId":"rice-5kg","quantity":3,"steps":[{"sourceId":"pack-1","kind":"pack","units":2,"unitsPerPack":2},{"sourceId":"bulk","kind":"bulk","units":1}]}`)),
			Header:     http.Header{},
		}, nil
	})

	plan, err := client.Plan(context.Background(), Request{ProductID: "rice-5kg", Quantity: 3})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if capturedURL != "http://stock.test/stock/plan" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].Kind != "pack" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanInsufficientStockIsValidationError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusConflict,
			Body:       io.NopCloser(strings.NewReader("insufficient stock")),
			Header:     http.Header{},
		}, nil
	})

	_, err := client.Plan(context.Background(), Request{ProductID: "p", Quantity: 99})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlanServerErrorIsDependencyError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream")),
			Header:     http.Header{},
		}, nil
	})

	_, err := client.Plan(context.Background(), Request{ProductID: "p", Quantity: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestPlanRejectsEmptyRequest(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	if _, err := client.Plan(context.Background(), Request{Quantity: 1}); err == nil {
		t.Fatal("expected error for missing product")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
