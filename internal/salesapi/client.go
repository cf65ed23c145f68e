package salesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

const (
	// HeaderIdempotencyKey carries the derived sale key on every submission.
	HeaderIdempotencyKey = "Idempotency-Key"

	responseReadLimit int64 = 1024
	defaultTimeout          = 10 * time.Second
)

var errBaseURLRequired = errors.New("sales api base url is required")

// Result describes an acknowledged submission. Replayed is true when the
// remote side had already applied the key and answered from its ledger.
type Result struct {
	SaleID     string `json:"saleId"`
	SaleNumber int64  `json:"saleNumber,omitempty"`
	StatusCode int    `json:"-"`
	Replayed   bool   `json:"-"`
}

// Client talks to the remote Sales API over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit posts a frozen sale payload under key. 201 means the sale was
// applied now and 200 means the key had already been applied. Every failure
// is classified as TRANSIENT_SYNC_ERROR or PERMANENT_SYNC_ERROR.
func (c *Client) Submit(ctx context.Context, key string, payload []byte) (*Result, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sales api client not configured")
	}
	if strings.TrimSpace(key) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sales", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePermanentSync, err, "build sale submission")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, key)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusFailure(resp)
	}

	var env dataEnvelope[Result]
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportFailure(err)
	}
	if len(bytes.TrimSpace(body)) > 0 {
		// a malformed body does not undo the acknowledgement
		_ = json.Unmarshal(body, &env)
	}
	result := env.Data
	result.StatusCode = resp.StatusCode
	result.Replayed = resp.StatusCode == http.StatusOK
	return &result, nil
}

// ActivePromotions fetches the promotion snapshot for pricing.
func (c *Client) ActivePromotions(ctx context.Context) ([]pricing.Promotion, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sales api client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/promotions/active", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build promotions request")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute promotions request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "promotions request failed")
	}

	var env dataEnvelope[[]pricing.Promotion]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode promotions response")
	}
	if env.Data == nil {
		return []pricing.Promotion{}, nil
	}
	return env.Data, nil
}

// Ping probes GET /health/live. Any non-2xx answer counts as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "sales api client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build health request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sales api unreachable")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseReadLimit))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sales api health returned %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	reason := strings.TrimSpace(string(raw))

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		reason = env.Error.Message
		if env.Error.Code != "" {
			reason = env.Error.Code + ": " + env.Error.Message
		}
	}

	return classifyStatus(resp.StatusCode, reason)
}
