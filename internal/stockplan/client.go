package stockplan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

const responseReadLimit int64 = 1024

// Request asks the planner how to fulfil quantity units of a product.
type Request struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Step is one source the planner draws from: a sealed pack or loose bulk stock.
type Step struct {
	SourceID     string `json:"sourceId"`
	Kind         string `json:"kind"`
	Units        int    `json:"units"`
	UnitsPerPack int    `json:"unitsPerPack,omitempty"`
}

// Plan is the planner's consumption breakdown. It is attached to the sale as
// returned and never recomputed locally.
type Plan struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Steps     []Step `json:"steps"`
}

// Planner resolves consumption plans for cart lines.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Plan, error)
}

// Client calls the stock planner's POST /stock/plan endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a planner client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("stock planner base url is required")
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Plan requests a consumption plan. A 409 or 422 from the planner means the
// quantity cannot be fulfilled and is reported as a validation error.
func (c *Client) Plan(ctx context.Context, req Request) (*Plan, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock planner not configured")
	}
	if strings.TrimSpace(req.ProductID) == "" || req.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and positive quantity are required for a stock plan")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal stock plan request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stock/plan", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build stock plan request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute stock plan request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").WithDetails(map[string]any{
			"productId": req.ProductID,
			"quantity":  req.Quantity,
			"reason":    strings.TrimSpace(string(msg)),
		})
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "stock plan request failed")
	}

	var plan Plan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stock plan response")
	}
	return &plan, nil
}
