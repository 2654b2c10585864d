package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	catalogrepository "github.com/smallbiznis/accounts/internal/catalog/repository"
	"github.com/smallbiznis/accounts/internal/charge/domain"
	"github.com/smallbiznis/accounts/internal/charge/repository"
	"github.com/smallbiznis/accounts/internal/clock"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/migration"
	"github.com/smallbiznis/accounts/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	orgrepository "github.com/smallbiznis/accounts/internal/organization/repository"
	orgservice "github.com/smallbiznis/accounts/internal/organization/service"
	orgtyperepository "github.com/smallbiznis/accounts/internal/orgtype/repository"
	orgtypeservice "github.com/smallbiznis/accounts/internal/orgtype/service"
	"github.com/smallbiznis/accounts/internal/payment"
	paymentdomain "github.com/smallbiznis/accounts/internal/payment/domain"
	"github.com/smallbiznis/accounts/internal/payment/memory"
	"github.com/smallbiznis/accounts/internal/payment/stripe"
	"github.com/smallbiznis/accounts/internal/providers/email"
	"github.com/smallbiznis/accounts/internal/ratelimit"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type sentEmail struct {
	to          []string
	template    string
	attachments []email.Attachment
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, msg email.Message) error { return f.err }

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data any, attachments ...email.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: to, template: templateName, attachments: attachments})
	return nil
}

// failingInsert simulates a database outage after the processor accepted the charge.
type failingInsert struct {
	domain.Repository
}

func (failingInsert) Insert(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return errors.New("database unavailable")
}

// garbledResponse charges through the memory processor and then reports the
// success body as unreadable.
type garbledResponse struct {
	*memory.Processor
}

func (g garbledResponse) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	if _, err := g.Processor.CreateCharge(ctx, req); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: unexpected EOF", paymentdomain.ErrResponseUnreadable)
}

type fixture struct {
	svc       domain.Service
	orgs      orgdomain.Service
	processor *memory.Processor
	mail      *fakeEmail
	conn      *gorm.DB
	node      *snowflake.Node
	params    Params
}

type option func(*Params)

func setup(t *testing.T, opts ...option) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	typeRepo := orgtyperepository.Provide()
	types := orgtypeservice.New(orgtypeservice.Params{DB: conn, Log: log, GenID: node, Repo: typeRepo})
	orgs := orgservice.New(orgservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Repo:     orgrepository.Provide(),
		Plans:    catalogrepository.Provide(),
		Types:    typeRepo,
		Subtypes: types,
	})

	processor := memory.New()
	mail := &fakeEmail{}
	p := Params{
		DB:         conn,
		Log:        log,
		GenID:      node,
		Cfg:        config.Config{AppName: "accounts"},
		Repo:       repository.Provide(),
		Orgs:       orgs,
		Processors: payment.NewRegistry(memory.ProviderName, processor),
		Billing:    config.NewStaticBillingConfig(config.DefaultBillingConfig()),
		Email:      mail,
		Clock:      clock.NewFakeClock(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)),
	}
	for _, opt := range opts {
		opt(&p)
	}

	return &fixture{svc: New(p), orgs: orgs, processor: processor, mail: mail, conn: conn, node: node, params: p}
}

func (f *fixture) newOrg(t *testing.T, name string) *orgdomain.OrganizationResponse {
	t.Helper()
	now := time.Now().UTC()
	user := userdomain.User{
		ID:        f.node.Generate(),
		UUID:      uuid.NewString(),
		Username:  "u" + strconv.FormatInt(f.node.Generate().Int64(), 36),
		Email:     name + "@example.com",
		Source:    userdomain.SourceSquarelet,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.conn.Create(&user).Error)

	org, err := f.orgs.Create(context.Background(), orgdomain.CreateOrganizationRequest{
		CreatorID:    user.ID,
		CreatorEmail: user.Email,
		Name:         name,
	})
	require.NoError(t, err)
	return org
}

func (f *fixture) countCharges(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&domain.Charge{}).Count(&n).Error)
	return n
}

func TestCreateRecordsCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	org := f.newOrg(t, "planet")

	resp, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       2500,
		FeeAmount:    125,
		Description:  "Annual plan",
		Token:        memory.TokenVisa,
	})
	require.NoError(t, err)
	assert.Equal(t, org.UUID, resp.Organization)
	assert.Equal(t, int64(2500), resp.Amount)
	assert.Equal(t, int64(125), resp.FeeAmount)
	assert.Equal(t, "Annual plan", resp.Description)
	assert.Equal(t, "Visa ending in 4242", resp.Card)
	assert.NotEmpty(t, resp.ChargeID)

	var rows []domain.Charge
	require.NoError(t, f.conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, resp.ChargeID, rows[0].ChargeID)
	assert.Equal(t, int64(2500), rows[0].Amount)
	assert.Equal(t, int64(125), rows[0].FeeAmount)
	assert.Equal(t, "usd", rows[0].Currency)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, []string{"planet@example.com"}, f.mail.sent[0].to)
	assert.Equal(t, "charge_receipt", f.mail.sent[0].template)
	require.Len(t, f.mail.sent[0].attachments, 1)
	assert.Equal(t, "application/pdf", f.mail.sent[0].attachments[0].ContentType)
}

func TestCreateProcessorFailureWritesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	org := f.newOrg(t, "declined")

	_, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       2500,
		Token:        memory.TokenChargeDeclined,
	})
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	var paymentErr *domain.PaymentError
	require.True(t, errors.As(err, &paymentErr))
	assert.Equal(t, "Your card was declined.", paymentErr.Message)

	assert.Equal(t, int64(0), f.countCharges(t))
	assert.Empty(t, f.mail.sent)
}

func TestCreateValidatesBeforeProcessor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	org := f.newOrg(t, "validation")

	cases := []struct {
		name string
		req  domain.CreateChargeRequest
		want error
	}{
		{"zero amount", domain.CreateChargeRequest{Amount: 0}, domain.ErrInvalidAmount},
		{"below minimum", domain.CreateChargeRequest{Amount: 49}, domain.ErrAmountBelowMinimum},
		{"negative fee", domain.CreateChargeRequest{Amount: 100, FeeAmount: -1}, domain.ErrInvalidFeeAmount},
		{"fee above amount", domain.CreateChargeRequest{Amount: 100, FeeAmount: 101}, domain.ErrInvalidFeeAmount},
		{"save card without token", domain.CreateChargeRequest{Amount: 100, SaveCard: true}, domain.ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.Organization = org.UUID
			tc.req.Token = memory.TokenVisa
			if tc.req.SaveCard {
				tc.req.Token = ""
			}
			_, err := f.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Create(ctx, domain.CreateChargeRequest{Organization: uuid.NewString(), Amount: 100, Token: memory.TokenVisa})
	assert.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)

	assert.Equal(t, 0, f.processor.Charges())
	assert.Equal(t, int64(0), f.countCharges(t))
}

func TestCreateZeroFeeIsAllowed(t *testing.T) {
	f := setup(t)
	org := f.newOrg(t, "nofee")

	resp, err := f.svc.Create(context.Background(), domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       50,
		Token:        memory.TokenVisa,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.FeeAmount)
}

func TestSavedCardIsReused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	org := f.newOrg(t, "saved")

	_, err := f.svc.Create(ctx, domain.CreateChargeRequest{Organization: org.UUID, Amount: 500})
	assert.ErrorIs(t, err, domain.ErrNoPaymentMethod)

	first, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       500,
		Token:        memory.TokenMastercard,
		SaveCard:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "MasterCard ending in 4444", first.Card)

	second, err := f.svc.Create(ctx, domain.CreateChargeRequest{Organization: org.UUID, Amount: 700})
	require.NoError(t, err)
	assert.Equal(t, "MasterCard ending in 4444", second.Card)

	var customers int64
	require.NoError(t, f.conn.Model(&domain.Customer{}).Count(&customers).Error)
	assert.Equal(t, int64(1), customers)
	assert.Equal(t, int64(2), f.countCharges(t))
}

func TestCreatePersistFailureIsNotRecorded(t *testing.T) {
	f := setup(t, func(p *Params) {
		p.Repo = failingInsert{Repository: repository.Provide()}
	})
	org := f.newOrg(t, "outage")

	_, err := f.svc.Create(context.Background(), domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       2500,
		Token:        memory.TokenVisa,
	})
	require.ErrorIs(t, err, domain.ErrChargeNotRecorded)
	assert.NotErrorIs(t, err, domain.ErrPaymentFailed)
	assert.Equal(t, 1, f.processor.Charges())
	assert.Empty(t, f.mail.sent)
}

func TestCreateUnreadableProcessorResponseNeedsReconciliation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(metrics.Config{}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	processor := memory.New()
	f := setup(t, func(p *Params) {
		p.Processors = payment.NewRegistry(memory.ProviderName, garbledResponse{Processor: processor})
		p.Metrics = m
	})
	org := f.newOrg(t, "garbled")

	_, err = f.svc.Create(context.Background(), domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       2500,
		Token:        memory.TokenVisa,
	})
	require.ErrorIs(t, err, domain.ErrChargeNotRecorded)
	assert.ErrorIs(t, err, paymentdomain.ErrResponseUnreadable)
	assert.NotErrorIs(t, err, domain.ErrPaymentFailed)
	assert.Equal(t, 1, processor.Charges())
	assert.Equal(t, int64(0), f.countCharges(t))
	assert.Empty(t, f.mail.sent)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var reconciliations int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "accounts_charge_reconciliation_required_total" {
				continue
			}
			for _, dp := range metric.Data.(metricdata.Sum[int64]).DataPoints {
				reconciliations += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), reconciliations)
}

func TestReceiptEmailFailureDoesNotFailCharge(t *testing.T) {
	f := setup(t)
	f.mail.err = errors.New("smtp down")
	org := f.newOrg(t, "mailless")

	_, err := f.svc.Create(context.Background(), domain.CreateChargeRequest{
		Organization: org.UUID,
		Amount:       2500,
		Token:        memory.TokenVisa,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.countCharges(t))
}

func TestCreateHonorsLockAndRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	mr.SetTime(time.Unix(1700000000, 0))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := setup(t, func(p *Params) {
		p.Limiter = ratelimit.NewChargeLimiter(ratelimit.ChargeLimiterParams{
			Cfg:   config.Config{ChargeRateLimit: config.ChargeRateLimitConfig{Enabled: true, Rate: 0.1, Burst: 2}},
			Log:   p.Log,
			Redis: client,
		})
	})
	ctx := context.Background()
	org := f.newOrg(t, "throttled")
	req := domain.CreateChargeRequest{Organization: org.UUID, Amount: 100, Token: memory.TokenVisa}

	mr.Set("charge:lock:org:"+org.UUID, "someone-else")
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrChargeInProgress)
	mr.Del("charge:lock:org:" + org.UUID)

	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	var limitErr *ratelimit.LimitError
	assert.True(t, errors.As(err, &limitErr))

	assert.Equal(t, int64(1), f.countCharges(t))
}

func TestGetListAndReceipt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	org := f.newOrg(t, "ledger")

	var ids []string
	for i := 0; i < 3; i++ {
		resp, err := f.svc.Create(ctx, domain.CreateChargeRequest{
			Organization: org.UUID,
			Amount:       int64(100 * (i + 1)),
			FeeAmount:    10,
			Token:        memory.TokenVisa,
		})
		require.NoError(t, err)
		ids = append(ids, resp.ChargeID)
	}

	got, err := f.svc.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount)
	assert.Equal(t, org.UUID, got.Organization)

	_, err = f.svc.Get(ctx, "ch_missing")
	assert.ErrorIs(t, err, domain.ErrChargeNotFound)

	page, err := f.svc.ListByOrganization(ctx, org.UUID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Results[0].ChargeID)

	rest, err := f.svc.ListByOrganization(ctx, org.UUID, pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Results, 1)
	assert.Equal(t, ids[0], rest.Results[0].ChargeID)
	assert.False(t, rest.HasMore)

	doc, err := f.svc.Receipt(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, len(doc) > 4 && string(doc[:4]) == "%PDF")
}

func TestHandleWebhookRecordsPaymentFailure(t *testing.T) {
	now := time.Now()
	stripeClient := stripe.NewClient("sk_test", "http://127.0.0.1:0", nil).WithWebhookSecret("whsec_test")

	f := setup(t, func(p *Params) {
		p.Processors = payment.NewRegistry(memory.ProviderName, memory.New(), stripeClient)
	})
	ctx := context.Background()
	org := f.newOrg(t, "webhook")
	resolved, err := f.orgs.Resolve(ctx, org.UUID)
	require.NoError(t, err)

	require.NoError(t, f.conn.Create(&domain.Customer{
		ID:                  f.node.Generate(),
		OrganizationID:      resolved.ID,
		Provider:            stripe.ProviderName,
		ProcessorCustomerID: "cus_hook",
		CreatedAt:           now,
	}).Error)

	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_hook"}}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t="+ts+",v1="+stripe.Sign("whsec_test", ts, payload))

	require.NoError(t, f.svc.HandleWebhook(ctx, stripe.ProviderName, payload, headers))

	var failed int64
	require.NoError(t, f.conn.Model(&orgdomain.ChangeLog{}).
		Where("organization_id = ? AND reason = ?", resolved.ID, orgdomain.ChangeReasonFailed).
		Count(&failed).Error)
	assert.Equal(t, int64(1), failed)

	unknown := []byte(`{"id":"evt_2","type":"charge.failed","data":{"object":{"id":"ch_2","customer":"cus_other"}}}`)
	headers.Set("Stripe-Signature", "t="+ts+",v1="+stripe.Sign("whsec_test", ts, unknown))
	assert.NoError(t, f.svc.HandleWebhook(ctx, stripe.ProviderName, unknown, headers))

	headers.Set("Stripe-Signature", "t="+ts+",v1=deadbeef")
	assert.Error(t, f.svc.HandleWebhook(ctx, stripe.ProviderName, payload, headers))
}
