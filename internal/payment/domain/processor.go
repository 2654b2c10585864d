package domain

import (
	"context"
	"errors"
	"net/http"
)

// Processor is a card payment processor.
type Processor interface {
	Name() string
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	// AttachSource saves the token on the customer and makes it the default card.
	AttachSource(ctx context.Context, customerID, token string) (*Card, error)
	// DefaultCard returns nil when the customer has no saved card.
	DefaultCard(ctx context.Context, customerID string) (*Card, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// WebhookVerifier is implemented by processors that deliver signed webhooks.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, headers http.Header) (*Event, error)
}

// UserMessager is implemented by processor errors whose message is safe to
// show to the payer.
type UserMessager interface {
	UserMessage() string
}

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrCardDeclined     = errors.New("card_declined")
	ErrProcessor        = errors.New("payment_processor_error")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrWebhookDisabled  = errors.New("webhook_disabled")
	// ErrResponseUnreadable means the processor answered with success but the
	// body could not be decoded. The request may have taken effect.
	ErrResponseUnreadable = errors.New("processor_response_unreadable")
)

// UserMessage extracts a payer-facing message from a processor error.
func UserMessage(err error) string {
	var m UserMessager
	if errors.As(err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
	}
	if errors.Is(err, ErrCardDeclined) {
		return "Your card was declined."
	}
	return "Your payment could not be processed."
}
