// Package memory is an in-process processor for local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/accounts/internal/payment/domain"
)

const ProviderName = "memory"

// Test tokens understood by the processor. Unknown tokens behave like TokenVisa.
const (
	TokenVisa           = "tok_visa"
	TokenMastercard     = "tok_mastercard"
	TokenAmex           = "tok_amex"
	TokenChargeDeclined = "tok_chargeDeclined"
	TokenFail           = "tok_fail"
)

var errUnknownCustomer = errors.New("memory: no such customer")

type declineError struct {
	code string
}

func (e *declineError) Error() string       { return "memory: card declined: " + e.code }
func (e *declineError) Unwrap() error       { return domain.ErrCardDeclined }
func (e *declineError) UserMessage() string { return "Your card was declined." }

type storedCard struct {
	card  domain.Card
	token string
}

type Processor struct {
	mu        sync.Mutex
	seq       int
	customers map[string]*storedCard
	charges   map[string]domain.ChargeRequest
	now       func() time.Time
}

func New() *Processor {
	return &Processor{
		customers: map[string]*storedCard{},
		charges:   map[string]domain.ChargeRequest{},
		now:       time.Now,
	}
}

func (p *Processor) Name() string { return ProviderName }

func (p *Processor) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID("cus")
	p.customers[id] = nil
	return id, nil
}

func (p *Processor) AttachSource(ctx context.Context, customerID, token string) (*domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	card, err := cardFor(token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.customers[customerID]; !ok {
		return nil, errUnknownCustomer
	}
	card.ID = p.nextID("card")
	p.customers[customerID] = &storedCard{card: card, token: token}
	out := card
	return &out, nil
}

func (p *Processor) DefaultCard(ctx context.Context, customerID string) (*domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.customers[customerID]
	if !ok {
		return nil, errUnknownCustomer
	}
	if stored == nil {
		return nil, nil
	}
	out := stored.card
	return &out, nil
}

func (p *Processor) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrProcessor)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	token := req.Source
	var card domain.Card
	switch {
	case token != "":
		c, err := cardFor(token)
		if err != nil {
			return nil, err
		}
		card = c
	case req.Customer != "":
		stored, ok := p.customers[req.Customer]
		if !ok {
			return nil, errUnknownCustomer
		}
		if stored == nil {
			return nil, &declineError{code: "no_default_source"}
		}
		card = stored.card
		token = stored.token
	default:
		return nil, fmt.Errorf("%w: customer or source required", domain.ErrProcessor)
	}

	if token == TokenChargeDeclined {
		return nil, &declineError{code: "generic_decline"}
	}

	id := p.nextID("ch")
	p.charges[id] = req
	return &domain.ChargeResult{
		ID:      id,
		Created: p.now().UTC().Truncate(time.Second),
		Card:    &card,
	}, nil
}

// Charges returns how many charges succeeded.
func (p *Processor) Charges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charges)
}

func (p *Processor) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_mem_%06d", prefix, p.seq)
}

func cardFor(token string) (domain.Card, error) {
	switch strings.TrimSpace(token) {
	case "":
		return domain.Card{}, fmt.Errorf("%w: token required", domain.ErrProcessor)
	case TokenFail:
		return domain.Card{}, &declineError{code: "processing_error"}
	case TokenMastercard:
		return domain.Card{Brand: "MasterCard", Last4: "4444", ExpMonth: 12, ExpYear: 2034}, nil
	case TokenAmex:
		return domain.Card{Brand: "American Express", Last4: "8431", ExpMonth: 12, ExpYear: 2034}, nil
	case TokenChargeDeclined:
		return domain.Card{Brand: "Visa", Last4: "0341", ExpMonth: 12, ExpYear: 2034}, nil
	default:
		return domain.Card{Brand: "Visa", Last4: "4242", ExpMonth: 12, ExpYear: 2034}, nil
	}
}
