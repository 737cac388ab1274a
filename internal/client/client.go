// Package client talks to the storefront HTTP API on behalf of a shopper
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// APIError is a non-2xx response from the API
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api: %d %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New builds a client for an API rooted at baseURL, e.g. http://localhost:5000
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return fmt.Errorf("api: %s %s: decode response (%d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message, Field: env.Field}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Product fetches a product by ObjectID or legacy numeric id
func (c *Client) Product(ctx context.Context, ref string) (*domain.Product, error) {
	var p domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(ref), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*service.Session, error) {
	var s service.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", service.LoginInput{Email: email, Password: password}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type orderData struct {
	Order *domain.Order `json:"order"`
}

func (c *Client) PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (*domain.Order, error) {
	var d orderData
	if err := c.do(ctx, http.MethodPost, "/api/orders", in, &d); err != nil {
		return nil, err
	}
	return d.Order, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, orderID string) (*service.IntentResult, error) {
	var res service.IntentResult
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(orderID)+"/payment-intent", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, orderID, intentID string) (*domain.Order, error) {
	body := map[string]string{"orderId": orderID, "paymentIntentId": intentID}
	var d orderData
	if err := c.do(ctx, http.MethodPost, "/api/orders/confirm-payment", body, &d); err != nil {
		return nil, err
	}
	return d.Order, nil
}

// IntentIDFromSecret recovers the intent id from a client secret of the form <id>_secret_<suffix>
func IntentIDFromSecret(secret string) string {
	id, _, found := strings.Cut(secret, "_secret_")
	if !found {
		return ""
	}
	return id
}
