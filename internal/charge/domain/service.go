package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateChargeRequest) (*ChargeResponse, error)
	Get(ctx context.Context, chargeID string) (*ChargeResponse, error)
	ListByOrganization(ctx context.Context, orgUUID string, page pagination.Pagination) (*ListChargesResponse, error)
	// Receipt renders the PDF receipt for a recorded charge.
	Receipt(ctx context.Context, chargeID string) ([]byte, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// CreateChargeRequest charges Token when set, otherwise the organization's
// saved card. SaveCard stores Token as the new default card first.
type CreateChargeRequest struct {
	Organization string
	Amount       int64
	FeeAmount    int64
	Description  string
	Token        string
	SaveCard     bool
	ActorID      snowflake.ID
}

type ChargeResponse struct {
	ChargeID     string    `json:"charge_id"`
	Organization string    `json:"organization"`
	Amount       int64     `json:"amount"`
	FeeAmount    int64     `json:"fee_amount"`
	Currency     string    `json:"currency"`
	Description  string    `json:"description"`
	Card         string    `json:"card"`
	Created      time.Time `json:"created"`
}

type ListChargesResponse struct {
	Results []ChargeResponse `json:"results"`
	pagination.PageInfo
}

// PaymentError is a processor refusal. Message is safe to show to the payer.
type PaymentError struct {
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	return "payment_failed: " + e.Message
}

func (e *PaymentError) Unwrap() []error {
	return []error{ErrPaymentFailed, e.Err}
}

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrAmountBelowMinimum = errors.New("amount_below_minimum")
	ErrInvalidFeeAmount   = errors.New("invalid_fee_amount")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrNoPaymentMethod    = errors.New("no_payment_method")
	ErrPaymentFailed      = errors.New("payment_failed")
	// ErrChargeNotRecorded means the processor took the money but the local
	// row could not be written. It needs manual reconciliation.
	ErrChargeNotRecorded = errors.New("charge_not_recorded")
	ErrChargeNotFound    = errors.New("charge_not_found")
	ErrChargeInProgress  = errors.New("charge_in_progress")
	ErrRateLimited       = errors.New("rate_limited")
)
