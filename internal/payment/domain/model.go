package domain

import (
	"fmt"
	"strings"
	"time"
)

// Card is the display-safe view of a stored or charged card.
type Card struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Masked renders the card as "Visa ending in 4242". A nil card renders empty.
func (c *Card) Masked() string {
	if c == nil || strings.TrimSpace(c.Last4) == "" {
		return ""
	}
	brand := strings.TrimSpace(c.Brand)
	if brand == "" {
		brand = "Card"
	}
	return fmt.Sprintf("%s ending in %s", brand, c.Last4)
}

type CustomerRequest struct {
	Email          string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeRequest charges either Source (a one-time token) or the default card
// of Customer. Amount is in the currency's minor unit.
type ChargeRequest struct {
	Amount              int64
	Currency            string
	Customer            string
	Source              string
	Description         string
	StatementDescriptor string
	Metadata            map[string]string
	IdempotencyKey      string
}

type ChargeResult struct {
	ID      string
	Created time.Time
	Card    *Card
}

const (
	EventTypePaymentFailed = "payment_failed"
)

// Event is a verified processor webhook event reduced to what this service acts on.
type Event struct {
	ID         string
	Type       string
	Provider   string
	CustomerID string
	OccurredAt time.Time
}
