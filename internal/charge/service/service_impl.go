package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/accounts/internal/charge/domain"
	"github.com/smallbiznis/accounts/internal/clock"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	"github.com/smallbiznis/accounts/internal/payment"
	paymentdomain "github.com/smallbiznis/accounts/internal/payment/domain"
	"github.com/smallbiznis/accounts/internal/providers/email"
	"github.com/smallbiznis/accounts/internal/providers/pdf"
	"github.com/smallbiznis/accounts/internal/ratelimit"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDescriptionLength = 255

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       domain.Repository
	Orgs       orgdomain.Service
	Processors *payment.Registry
	Billing    *config.BillingConfigHolder

	Limiter *ratelimit.ChargeLimiter `optional:"true"`
	PDF     pdf.Provider             `optional:"true"`
	Email   email.Provider           `optional:"true"`
	Metrics *metrics.Metrics         `optional:"true"`
	Clock   clock.Clock              `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	issuer     string
	repo       domain.Repository
	orgs       orgdomain.Service
	processors *payment.Registry
	billing    *config.BillingConfigHolder
	limiter    *ratelimit.ChargeLimiter
	pdf        pdf.Provider
	email      email.Provider
	metrics    *metrics.Metrics
	clock      clock.Clock
}

func New(p Params) domain.Service {
	svc := &Service{
		db:         p.DB,
		log:        p.Log.Named("charge.service"),
		genID:      p.GenID,
		issuer:     p.Cfg.AppName,
		repo:       p.Repo,
		orgs:       p.Orgs,
		processors: p.Processors,
		billing:    p.Billing,
		limiter:    p.Limiter,
		pdf:        p.PDF,
		email:      p.Email,
		metrics:    p.Metrics,
		clock:      p.Clock,
	}
	if svc.issuer == "" {
		svc.issuer = "accounts"
	}
	if svc.billing == nil {
		svc.billing = config.NewStaticBillingConfig(config.DefaultBillingConfig())
	}
	if svc.pdf == nil {
		svc.pdf = pdf.New()
	}
	if svc.email == nil {
		svc.email = &email.NoOpProvider{}
	}
	if svc.metrics == nil {
		svc.metrics = metrics.NewNoop()
	}
	if svc.clock == nil {
		svc.clock = clock.System()
	}
	return svc
}

// Create validates, throttles, charges the processor and records the charge.
// Nothing is written when the processor refuses; a write failure after the
// processor accepted is reported as ErrChargeNotRecorded.
func (s *Service) Create(ctx context.Context, req domain.CreateChargeRequest) (*domain.ChargeResponse, error) {
	billing := s.billing.Get()

	description := strings.TrimSpace(req.Description)
	token := strings.TrimSpace(req.Token)
	switch {
	case req.Amount < 1:
		return nil, domain.ErrInvalidAmount
	case req.Amount < billing.MinimumCharge:
		return nil, domain.ErrAmountBelowMinimum
	case req.FeeAmount < 0 || req.FeeAmount > req.Amount:
		return nil, domain.ErrInvalidFeeAmount
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return nil, domain.ErrInvalidDescription
	case req.SaveCard && token == "":
		return nil, domain.ErrInvalidToken
	}

	org, err := s.orgs.Resolve(ctx, req.Organization)
	if err != nil {
		return nil, err
	}
	processor, err := s.processors.Active()
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Allow(ctx, org.UUID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	release, err := s.limiter.Lock(ctx, org.UUID, billing.ChargeLockTTL)
	if err != nil {
		if errors.Is(err, ratelimit.ErrChargeInProgress) {
			return nil, domain.ErrChargeInProgress
		}
		return nil, err
	}
	defer release()

	customerID, err := s.customer(ctx, processor, org)
	if err != nil {
		return nil, s.paymentFailed(ctx, processor.Name(), billing.Currency, org, err)
	}

	chargeReq := paymentdomain.ChargeRequest{
		Amount:              req.Amount,
		Currency:            billing.Currency,
		Description:         description,
		StatementDescriptor: billing.StatementDescriptor,
		Metadata: map[string]string{
			"organization": org.UUID,
			"fee_amount":   strconv.FormatInt(req.FeeAmount, 10),
		},
		IdempotencyKey: uuid.NewString(),
	}

	var card *paymentdomain.Card
	switch {
	case token != "" && req.SaveCard:
		card, err = processor.AttachSource(ctx, customerID, token)
		if err != nil {
			return nil, s.paymentFailed(ctx, processor.Name(), billing.Currency, org, err)
		}
		chargeReq.Customer = customerID
	case token != "":
		chargeReq.Source = token
	default:
		card, err = processor.DefaultCard(ctx, customerID)
		if err != nil {
			return nil, s.paymentFailed(ctx, processor.Name(), billing.Currency, org, err)
		}
		if card == nil {
			return nil, domain.ErrNoPaymentMethod
		}
		chargeReq.Customer = customerID
	}

	started := time.Now()
	result, err := processor.CreateCharge(ctx, chargeReq)
	if errors.Is(err, paymentdomain.ErrResponseUnreadable) {
		s.metrics.RecordProcessorLatency(ctx, processor.Name(), metrics.ChargeResultNotRecorded, time.Since(started))
		s.log.Error("charge response from processor unreadable",
			zap.String("idempotency_key", chargeReq.IdempotencyKey),
			zap.String("provider", processor.Name()),
			zap.String("organization_uuid", org.UUID),
			zap.Int64("amount", req.Amount),
			zap.Int64("fee_amount", req.FeeAmount),
			zap.Error(err),
		)
		s.metrics.RecordReconciliationRequired(ctx, processor.Name())
		s.metrics.RecordCharge(ctx, processor.Name(), metrics.ChargeResultNotRecorded, billing.Currency, req.Amount)
		return nil, fmt.Errorf("%w: %w", domain.ErrChargeNotRecorded, err)
	}
	if err != nil {
		s.metrics.RecordProcessorLatency(ctx, processor.Name(), metrics.ChargeResultDeclined, time.Since(started))
		return nil, s.paymentFailed(ctx, processor.Name(), billing.Currency, org, err)
	}
	s.metrics.RecordProcessorLatency(ctx, processor.Name(), metrics.ChargeResultSucceeded, time.Since(started))
	if result.Card == nil {
		result.Card = card
	}

	charge := domain.Charge{
		ID:             s.genID.Generate(),
		ChargeID:       result.ID,
		OrganizationID: org.ID,
		Provider:       processor.Name(),
		Amount:         req.Amount,
		FeeAmount:      req.FeeAmount,
		Currency:       billing.Currency,
		Description:    description,
		Card:           result.Card.Masked(),
		Created:        result.Created,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &charge); err != nil {
		s.log.Error("charge accepted by processor but not recorded",
			zap.String("charge_id", result.ID),
			zap.String("provider", processor.Name()),
			zap.String("organization_uuid", org.UUID),
			zap.Int64("amount", req.Amount),
			zap.Int64("fee_amount", req.FeeAmount),
			zap.Error(err),
		)
		s.metrics.RecordReconciliationRequired(ctx, processor.Name())
		s.metrics.RecordCharge(ctx, processor.Name(), metrics.ChargeResultNotRecorded, billing.Currency, req.Amount)
		return nil, fmt.Errorf("%w: %s", domain.ErrChargeNotRecorded, result.ID)
	}

	s.metrics.RecordCharge(ctx, processor.Name(), metrics.ChargeResultSucceeded, billing.Currency, req.Amount)
	s.log.Info("charge recorded",
		zap.String("charge_id", charge.ChargeID),
		zap.String("organization_uuid", org.UUID),
		zap.Int64("amount", charge.Amount),
	)

	if billing.SendReceipts {
		s.sendReceipt(ctx, org, charge)
	}

	resp := toResponse(charge, org.UUID)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, chargeID string) (*domain.ChargeResponse, error) {
	charge, org, err := s.load(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(*charge, org.UUID)
	return &resp, nil
}

func (s *Service) ListByOrganization(ctx context.Context, orgUUID string, page pagination.Pagination) (*domain.ListChargesResponse, error) {
	org, err := s.orgs.Resolve(ctx, orgUUID)
	if err != nil {
		return nil, err
	}

	page = page.Normalize()
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListByOrganization(ctx, s.db, org.ID, snowflake.ID(afterID), page.PageSize+1)
	if err != nil {
		return nil, err
	}
	items, info := pagination.Trim(items, page.PageSize, func(c domain.Charge) int64 { return c.ID.Int64() })

	results := make([]domain.ChargeResponse, 0, len(items))
	for _, item := range items {
		results = append(results, toResponse(item, org.UUID))
	}
	return &domain.ListChargesResponse{Results: results, PageInfo: info}, nil
}

func (s *Service) Receipt(ctx context.Context, chargeID string) ([]byte, error) {
	charge, org, err := s.load(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return s.pdf.ChargeReceipt(ctx, s.receipt(org, *charge))
}

// HandleWebhook records processor-reported payment failures on the
// organization's change log. Unknown customers and ignored events succeed.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	verifier, err := s.processors.Verifier(provider)
	if err != nil {
		return err
	}
	event, err := verifier.ParseWebhook(payload, headers)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		return nil
	}
	if err != nil {
		return err
	}

	customer, err := s.repo.FindCustomerByProcessorID(ctx, s.db, event.Provider, event.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		s.log.Info("webhook for unknown customer ignored",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ID),
		)
		return nil
	}

	if event.Type == paymentdomain.EventTypePaymentFailed {
		return s.orgs.RecordPaymentFailure(ctx, customer.OrganizationID)
	}
	return nil
}

// customer returns the processor customer id for org, creating it on first use.
func (s *Service) customer(ctx context.Context, processor paymentdomain.Processor, org *orgdomain.Organization) (string, error) {
	existing, err := s.repo.FindCustomer(ctx, s.db, org.ID, processor.Name())
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ProcessorCustomerID, nil
	}

	var contact string
	if emails, err := s.orgs.ListReceiptEmails(ctx, org.UUID); err == nil && len(emails) > 0 {
		contact = emails[0]
	}
	processorID, err := processor.CreateCustomer(ctx, paymentdomain.CustomerRequest{
		Email:          contact,
		Description:    org.Name,
		Metadata:       map[string]string{"organization": org.UUID},
		IdempotencyKey: "customer:" + org.UUID,
	})
	if err != nil {
		return "", err
	}

	customer := domain.Customer{
		ID:                  s.genID.Generate(),
		OrganizationID:      org.ID,
		Provider:            processor.Name(),
		ProcessorCustomerID: processorID,
		CreatedAt:           s.clock.Now(),
	}
	if err := s.repo.InsertCustomer(ctx, s.db, &customer); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return "", err
		}
		winner, findErr := s.repo.FindCustomer(ctx, s.db, org.ID, processor.Name())
		if findErr != nil || winner == nil {
			return "", err
		}
		return winner.ProcessorCustomerID, nil
	}
	return processorID, nil
}

// paymentFailed counts and logs a processor refusal. Local errors pass through unchanged.
func (s *Service) paymentFailed(ctx context.Context, provider, currency string, org *orgdomain.Organization, err error) error {
	if !errors.Is(err, paymentdomain.ErrCardDeclined) && !errors.Is(err, paymentdomain.ErrProcessor) && !isProcessorTransport(err) {
		return err
	}
	s.metrics.RecordCharge(ctx, provider, metrics.ChargeResultDeclined, currency, 0)
	s.log.Warn("payment failed",
		zap.String("provider", provider),
		zap.String("organization_uuid", org.UUID),
		zap.Error(err),
	)
	return &domain.PaymentError{Message: paymentdomain.UserMessage(err), Err: err}
}

func isProcessorTransport(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) load(ctx context.Context, chargeID string) (*domain.Charge, *orgdomain.Organization, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, nil, domain.ErrChargeNotFound
	}
	charge, err := s.repo.FindByChargeID(ctx, s.db, chargeID)
	if err != nil {
		return nil, nil, err
	}
	if charge == nil {
		return nil, nil, domain.ErrChargeNotFound
	}
	org, err := s.orgs.GetByID(ctx, orgdomain.Viewer{Staff: true}, charge.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return charge, &orgdomain.Organization{ID: charge.OrganizationID, UUID: org.UUID, Name: org.Name}, nil
}

func (s *Service) receipt(org *orgdomain.Organization, charge domain.Charge) pdf.Receipt {
	description := charge.Description
	if description == "" {
		description = "Payment"
	}

	items := []pdf.ReceiptItem{{
		Description: description,
		Amount:      domain.FormatAmount(charge.Amount-charge.FeeAmount, charge.Currency),
	}}
	if charge.FeeAmount > 0 {
		items = append(items, pdf.ReceiptItem{
			Description: "Processing fee",
			Amount:      domain.FormatAmount(charge.FeeAmount, charge.Currency),
		})
	}

	return pdf.Receipt{
		Issuer:           s.issuer,
		OrganizationName: org.Name,
		ChargeID:         charge.ChargeID,
		Date:             charge.Created.UTC().Format(time.DateOnly),
		Card:             charge.Card,
		Items:            items,
		Total:            domain.FormatAmount(charge.Amount, charge.Currency),
	}
}

type receiptEmail struct {
	pdf.Receipt
}

func (r receiptEmail) Subject() string {
	return fmt.Sprintf("Your %s receipt (%s)", r.Issuer, r.Total)
}

// sendReceipt is best-effort: the charge is already recorded.
func (s *Service) sendReceipt(ctx context.Context, org *orgdomain.Organization, charge domain.Charge) {
	log := s.log.With(zap.String("charge_id", charge.ChargeID))

	recipients, err := s.orgs.ListReceiptEmails(ctx, org.UUID)
	if err != nil {
		log.Warn("load receipt emails failed", zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	receipt := s.receipt(org, charge)
	var attachments []email.Attachment
	doc, err := s.pdf.ChargeReceipt(ctx, receipt)
	if err != nil {
		log.Warn("render receipt pdf failed", zap.Error(err))
	} else if len(doc) > 0 {
		attachments = append(attachments, email.Attachment{
			Filename:    "receipt-" + charge.ChargeID + ".pdf",
			ContentType: "application/pdf",
			Data:        doc,
		})
	}

	if err := s.email.SendTemplate(ctx, recipients, "charge_receipt", receiptEmail{Receipt: receipt}, attachments...); err != nil {
		log.Warn("send receipt email failed", zap.Error(err))
		return
	}
	log.Info("receipt sent", zap.Int("recipients", len(recipients)))
}

func toResponse(charge domain.Charge, orgUUID string) domain.ChargeResponse {
	return domain.ChargeResponse{
		ChargeID:     charge.ChargeID,
		Organization: orgUUID,
		Amount:       charge.Amount,
		FeeAmount:    charge.FeeAmount,
		Currency:     charge.Currency,
		Description:  charge.Description,
		Card:         charge.Card,
		Created:      charge.Created,
	}
}
