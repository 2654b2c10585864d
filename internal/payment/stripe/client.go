// Package stripe charges cards through the Stripe REST API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/observability/tracing"
	"github.com/smallbiznis/accounts/internal/payment/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ProviderName   = "stripe"
	DefaultBaseURL = "https://api.stripe.com"
)

var ErrMissingSecretKey = errors.New("stripe_secret_key_missing")

// Error is an error response decoded from the API.
type Error struct {
	StatusCode  int    `json:"-"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Param       string `json:"param"`
	Message     string `json:"message"`
}

func (e *Error) Error() string {
	code := e.Code
	if e.DeclineCode != "" {
		code = e.DeclineCode
	}
	if code == "" {
		code = e.Type
	}
	return fmt.Sprintf("stripe: %s (status %d): %s", code, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Type == "card_error" {
		return domain.ErrCardDeclined
	}
	return domain.ErrProcessor
}

// UserMessage is only populated for card errors; other messages may name API internals.
func (e *Error) UserMessage() string {
	if e.Type != "card_error" {
		return ""
	}
	return e.Message
}

type errorResponse struct {
	Error Error `json:"error"`
}

type Client struct {
	secretKey     string
	baseURL       string
	webhookSecret string
	client        *http.Client
	now           func() time.Time
}

// New builds the client from payment config.
func New(cfg config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.Payment.StripeSecretKey) == "" {
		return nil, ErrMissingSecretKey
	}
	c := NewClient(cfg.Payment.StripeSecretKey, cfg.Payment.StripeBaseURL, nil)
	c.webhookSecret = strings.TrimSpace(cfg.Payment.StripeWebhookSecret)
	return c, nil
}

func NewClient(secretKey, baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		secretKey: strings.TrimSpace(secretKey),
		baseURL:   baseURL,
		client:    httpClient,
		now:       time.Now,
	}
}

// WithWebhookSecret enables ParseWebhook.
func (c *Client) WithWebhookSecret(secret string) *Client {
	c.webhookSecret = strings.TrimSpace(secret)
	return c
}

func (c *Client) Name() string { return ProviderName }

type customerObject struct {
	ID            string          `json:"id"`
	Deleted       bool            `json:"deleted"`
	DefaultSource json.RawMessage `json:"default_source"`
}

type cardObject struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

func (o cardObject) card() *domain.Card {
	return &domain.Card{
		ID:       o.ID,
		Brand:    o.Brand,
		Last4:    o.Last4,
		ExpMonth: o.ExpMonth,
		ExpYear:  o.ExpYear,
	}
}

type chargeObject struct {
	ID                   string     `json:"id"`
	Created              int64      `json:"created"`
	Status               string     `json:"status"`
	Source               cardObject `json:"source"`
	PaymentMethodDetails struct {
		Card cardObject `json:"card"`
	} `json:"payment_method_details"`
}

func (c *Client) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (string, error) {
	values := url.Values{}
	if req.Email != "" {
		values.Set("email", req.Email)
	}
	if req.Description != "" {
		values.Set("description", req.Description)
	}
	setMetadata(values, req.Metadata)

	var customer customerObject
	if err := c.do(ctx, http.MethodPost, "/v1/customers", values, req.IdempotencyKey, &customer); err != nil {
		return "", err
	}
	if customer.ID == "" {
		return "", fmt.Errorf("%w: customer without id", domain.ErrResponseUnreadable)
	}
	return customer.ID, nil
}

func (c *Client) AttachSource(ctx context.Context, customerID, token string) (*domain.Card, error) {
	values := url.Values{}
	values.Set("source", token)

	var card cardObject
	path := "/v1/customers/" + url.PathEscape(customerID) + "/sources"
	if err := c.do(ctx, http.MethodPost, path, values, "", &card); err != nil {
		return nil, err
	}
	if card.ID == "" {
		return nil, fmt.Errorf("%w: source without id", domain.ErrResponseUnreadable)
	}

	update := url.Values{}
	update.Set("default_source", card.ID)
	var customer customerObject
	if err := c.do(ctx, http.MethodPost, "/v1/customers/"+url.PathEscape(customerID), update, "", &customer); err != nil {
		return nil, err
	}
	return card.card(), nil
}

func (c *Client) DefaultCard(ctx context.Context, customerID string) (*domain.Card, error) {
	path := "/v1/customers/" + url.PathEscape(customerID) + "?expand[]=default_source"

	var customer customerObject
	if err := c.do(ctx, http.MethodGet, path, nil, "", &customer); err != nil {
		return nil, err
	}
	if customer.Deleted || len(customer.DefaultSource) == 0 || string(customer.DefaultSource) == "null" {
		return nil, nil
	}

	var card cardObject
	if err := json.Unmarshal(customer.DefaultSource, &card); err != nil {
		return nil, fmt.Errorf("decode default source: %w", err)
	}
	if card.ID == "" || card.Last4 == "" {
		return nil, nil
	}
	return card.card(), nil
}

func (c *Client) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", strings.ToLower(req.Currency))
	if req.Customer != "" {
		values.Set("customer", req.Customer)
	}
	if req.Source != "" {
		values.Set("source", req.Source)
	}
	if req.Description != "" {
		values.Set("description", req.Description)
	}
	if req.StatementDescriptor != "" {
		values.Set("statement_descriptor", req.StatementDescriptor)
	}
	setMetadata(values, req.Metadata)

	var charge chargeObject
	if err := c.do(ctx, http.MethodPost, "/v1/charges", values, req.IdempotencyKey, &charge); err != nil {
		return nil, err
	}
	if charge.ID == "" {
		return nil, fmt.Errorf("%w: charge without id", domain.ErrResponseUnreadable)
	}

	card := charge.PaymentMethodDetails.Card
	if card.Last4 == "" {
		card = charge.Source
	}
	created := time.Unix(charge.Created, 0).UTC()
	if charge.Created == 0 {
		created = c.now().UTC()
	}
	return &domain.ChargeResult{
		ID:      charge.ID,
		Created: created,
		Card:    card.card(),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, idempotencyKey string, out any) (err error) {
	if c.secretKey == "" {
		return ErrMissingSecretKey
	}

	ctx, span := tracing.StartSpan(ctx, "stripe.request",
		attribute.String("http.method", method),
		attribute.String("stripe.path", strings.SplitN(path, "?", 2)[0]),
	)
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "stripe request failed")
		}
		span.End()
	}()

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var decoded errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return &Error{StatusCode: resp.StatusCode, Type: "api_error", Message: "stripe_request_failed"}
		}
		decoded.Error.StatusCode = resp.StatusCode
		return &decoded.Error
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: status %d: %v", domain.ErrResponseUnreadable, resp.StatusCode, err)
	}
	return nil
}

func setMetadata(values url.Values, metadata map[string]string) {
	for k, v := range metadata {
		values.Set("metadata["+k+"]", v)
	}
}
