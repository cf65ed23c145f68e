package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

type quoteBody struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":"p1","quantity":2}`))
	var body quoteBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProductID != "p1" || body.Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"productId":"p1","quantity":1,"extra":true}`,
		"malformed":     `{"productId":`,
		"validation":    `{"productId":"","quantity":0}`,
	}
	for name, raw := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var body quoteBody
		err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	if got, err := ParseQueryInt(req, "limit", 50, 1, 100); err != nil || got != 20 {
		t.Fatalf("expected 20, got %d (%v)", got, err)
	}
	if got, _ := ParseQueryInt(req, "missing", 50, 1, 100); got != 50 {
		t.Fatalf("expected default, got %d", got)
	}
	bad := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(bad, "limit", 50, 1, 100); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestParseUUIDParam(t *testing.T) {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("clientTempId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if _, err := ParseUUIDParam(req, "clientTempId"); err == nil {
		t.Fatalf("expected error for malformed uuid")
	}

	rc = chi.NewRouteContext()
	rc.URLParams.Add("clientTempId", "3f0c2f8e-1b6a-4f7e-9a53-6b0d1c2e4a10")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	id, err := ParseUUIDParam(req, "clientTempId")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.String() != "3f0c2f8e-1b6a-4f7e-9a53-6b0d1c2e4a10" {
		t.Fatalf("unexpected id %s", id)
	}
}
