package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authservice "github.com/smallbiznis/accounts/internal/auth/service"
	"github.com/smallbiznis/accounts/internal/auth/token"
	"github.com/smallbiznis/accounts/internal/authorization"
	catalogrepository "github.com/smallbiznis/accounts/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/accounts/internal/catalog/service"
	chargedomain "github.com/smallbiznis/accounts/internal/charge/domain"
	chargerepository "github.com/smallbiznis/accounts/internal/charge/repository"
	chargeservice "github.com/smallbiznis/accounts/internal/charge/service"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/migration"
	"github.com/smallbiznis/accounts/internal/observability"
	orgrepository "github.com/smallbiznis/accounts/internal/organization/repository"
	orgservice "github.com/smallbiznis/accounts/internal/organization/service"
	orgtyperepository "github.com/smallbiznis/accounts/internal/orgtype/repository"
	orgtypeservice "github.com/smallbiznis/accounts/internal/orgtype/service"
	"github.com/smallbiznis/accounts/internal/payment"
	"github.com/smallbiznis/accounts/internal/payment/memory"
	"github.com/smallbiznis/accounts/internal/providers/email"
	"github.com/smallbiznis/accounts/internal/signup"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	userrepository "github.com/smallbiznis/accounts/internal/user/repository"
	userservice "github.com/smallbiznis/accounts/internal/user/service"
	"github.com/smallbiznis/accounts/pkg/db"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	router *gin.Engine
	conn   *gorm.DB
	srv    *Server
}

type account struct {
	token       string
	individual  string
	username    string
	userUUID    string
	userDetails *userdomain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	log := zaptest.NewLogger(t)
	cfg := config.Config{AppName: "accounts", AuthJWTSecret: "test-secret"}

	typeRepo := orgtyperepository.Provide()
	types := orgtypeservice.New(orgtypeservice.Params{DB: conn, Log: log, GenID: node, Repo: typeRepo})
	orgRepo := orgrepository.Provide()
	orgs := orgservice.New(orgservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Repo:     orgRepo,
		Plans:    catalogrepository.Provide(),
		Types:    typeRepo,
		Subtypes: types,
	})
	users := userservice.New(userservice.Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Repo:    userrepository.Provide(),
		Orgs:    orgs,
		OrgRepo: orgRepo,
	})
	issuer, err := token.NewIssuer(cfg)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	authsvc := authservice.New(authservice.Params{Log: log, Users: users, Issuer: issuer})
	enforcer, err := authorization.NewMemoryEnforcer()
	if err != nil {
		t.Fatalf("failed to create enforcer: %v", err)
	}
	charges := chargeservice.New(chargeservice.Params{
		DB:         conn,
		Log:        log,
		GenID:      node,
		Cfg:        cfg,
		Repo:       chargerepository.Provide(),
		Orgs:       orgs,
		Processors: payment.NewRegistry(memory.ProviderName, memory.New()),
		Billing:    config.NewStaticBillingConfig(config.DefaultBillingConfig()),
		Email:      &email.NoOpProvider{},
	})

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}, nil),
		Cfg:             cfg,
		Log:             log,
		Authsvc:         authsvc,
		Signupsvc:       signup.NewService(signup.Params{Log: log, Auth: authsvc, Users: users, Orgs: orgs}),
		UserSvc:         users,
		OrganizationSvc: orgs,
		OrgTypeSvc:      types,
		CatalogSvc:      catalogservice.New(catalogservice.Params{DB: conn, Log: log, GenID: node, Repo: catalogrepository.Provide()}),
		ChargeSvc:       charges,
		AuthzSvc:        authorization.NewService(authorization.Params{DB: conn, Log: log, Enforcer: enforcer, Orgs: orgRepo}),
	})

	return &testEnv{router: srv.Engine(), conn: conn, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}

func (e *testEnv) signup(t *testing.T, username string) account {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct-horse-42",
	})
	expectStatus(t, resp, http.StatusCreated)
	result := decode[struct {
		Token                  string `json:"token"`
		User                   string `json:"user"`
		IndividualOrganization string `json:"individual_organization"`
	}](t, resp)
	if result.Token == "" || result.IndividualOrganization == "" {
		t.Fatalf("signup returned incomplete result: %s", resp.Body.String())
	}
	return account{token: result.Token, individual: result.IndividualOrganization, username: username, userUUID: result.User}
}

func (e *testEnv) staff(t *testing.T, username string) account {
	t.Helper()
	ctx := context.Background()
	user, err := e.srv.userSvc.Create(ctx, userdomain.CreateUserRequest{
		Username: username,
		Email:    username + "@example.com",
		IsStaff:  true,
	})
	if err != nil {
		t.Fatalf("failed to create staff user: %v", err)
	}
	issued, err := e.srv.authsvc.IssueToken(user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return account{token: issued.Token, username: username, userUUID: user.UUID, userDetails: user}
}

func (e *testEnv) createOrg(t *testing.T, owner account, name string, private bool) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/pp-api/organizations/", owner.token, map[string]any{
		"name":    name,
		"private": private,
	})
	expectStatus(t, resp, http.StatusCreated)
	org := decode[struct {
		UUID string `json:"uuid"`
	}](t, resp)
	return org.UUID
}

type membershipList struct {
	Results []struct {
		IndividualOrganization string `json:"individual_organization"`
		Admin                  bool   `json:"admin"`
	} `json:"results"`
	NextPageToken string `json:"next_page_token"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestSignupLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse-42",
	})
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, http.MethodGet, "/auth/me", alice.token, nil)
	expectStatus(t, resp, http.StatusOK)
	me := decode[struct {
		Username               string `json:"username"`
		IndividualOrganization string `json:"individual_organization"`
	}](t, resp)
	if me.Username != "alice" || me.IndividualOrganization != alice.individual {
		t.Fatalf("unexpected profile: %+v", me)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/auth/me", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodGet, "/auth/me", "not-a-token", nil), http.StatusUnauthorized)

	resp = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "correct-horse-42",
	})
	expectStatus(t, resp, http.StatusConflict)
}

func TestMembershipLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	orgUUID := env.createOrg(t, alice, "Daily Planet", false)
	members := "/pp-api/organizations/" + orgUUID + "/memberships/"

	// creator is the only admin
	list := decode[membershipList](t, env.do(t, http.MethodGet, members, "", nil))
	if len(list.Results) != 1 || !list.Results[0].Admin || list.Results[0].IndividualOrganization != alice.individual {
		t.Fatalf("expected alice as sole admin, got %+v", list.Results)
	}

	// members cannot add members
	resp := env.do(t, http.MethodPost, members, bob.token, map[string]any{"individual_organization": bob.individual})
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodPost, members, alice.token, map[string]any{"individual_organization": bob.individual})
	expectStatus(t, resp, http.StatusCreated)

	resp = env.do(t, http.MethodPost, members, alice.token, map[string]any{"individual_organization": bob.individual, "admin": true})
	expectStatus(t, resp, http.StatusConflict)

	list = decode[membershipList](t, env.do(t, http.MethodGet, members, "", nil))
	if len(list.Results) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(list.Results))
	}

	resp = env.do(t, http.MethodGet, members+bob.individual+"/", "", nil)
	expectStatus(t, resp, http.StatusOK)

	// bob is not an admin
	resp = env.do(t, http.MethodPatch, "/pp-api/organizations/"+orgUUID+"/", bob.token, map[string]any{"name": "Bob's Planet"})
	expectStatus(t, resp, http.StatusForbidden)
	resp = env.do(t, http.MethodPatch, "/pp-api/organizations/"+orgUUID+"/", "", map[string]any{"name": "Anonymous"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, http.MethodPatch, members+bob.individual+"/", alice.token, map[string]any{"admin": true})
	expectStatus(t, resp, http.StatusOK)
	resp = env.do(t, http.MethodPatch, "/pp-api/organizations/"+orgUUID+"/", bob.token, map[string]any{"name": "Planet"})
	expectStatus(t, resp, http.StatusOK)

	// members may leave on their own
	resp = env.do(t, http.MethodDelete, members+bob.individual+"/", bob.token, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = env.do(t, http.MethodDelete, members+bob.individual+"/", alice.token, nil)
	expectStatus(t, resp, http.StatusNotFound)

	list = decode[membershipList](t, env.do(t, http.MethodGet, members, "", nil))
	if len(list.Results) != 1 {
		t.Fatalf("expected 1 membership after removal, got %d", len(list.Results))
	}

	resp = env.do(t, http.MethodPost, "/pp-api/organizations/"+alice.individual+"/memberships/", alice.token, map[string]any{"individual_organization": bob.individual})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestPrivateOrganizationsHiddenFromOutsiders(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	carol := env.signup(t, "carol")
	admin := env.staff(t, "perry")
	orgUUID := env.createOrg(t, alice, "Fortress", true)

	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/", carol.token, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/", alice.token, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/", admin.token, nil), http.StatusOK)

	resp := env.do(t, http.MethodGet, "/pp-api/organizations/?individual=false", carol.token, nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Results []struct {
			UUID string `json:"uuid"`
		} `json:"results"`
	}](t, resp)
	for _, org := range list.Results {
		if org.UUID == orgUUID {
			t.Fatal("private organization listed for a non-member")
		}
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/organizations/"+orgUUID+"/", carol.token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodGet, "/api/organizations/"+orgUUID+"/", admin.token, nil), http.StatusOK)
}

func TestCreateCharge(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	admin := env.staff(t, "perry")
	orgUUID := env.createOrg(t, alice, "Daily Planet", false)

	countCharges := func() int64 {
		var n int64
		if err := env.conn.Model(&chargedomain.Charge{}).Count(&n).Error; err != nil {
			t.Fatalf("failed to count charges: %v", err)
		}
		return n
	}

	body := map[string]any{
		"organization": orgUUID,
		"amount":       2500,
		"fee_amount":   125,
		"description":  "Annual plan",
		"token":        memory.TokenVisa,
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/charges/", "", body), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodPost, "/api/charges/", bob.token, body), http.StatusForbidden)
	if n := countCharges(); n != 0 {
		t.Fatalf("expected no charges after rejected requests, got %d", n)
	}

	resp := env.do(t, http.MethodPost, "/api/charges/", alice.token, body)
	expectStatus(t, resp, http.StatusCreated)
	charge := decode[chargedomain.ChargeResponse](t, resp)
	if charge.Amount != 2500 || charge.FeeAmount != 125 || charge.Card != "Visa ending in 4242" || charge.Organization != orgUUID {
		t.Fatalf("unexpected charge response: %+v", charge)
	}

	declined := map[string]any{"organization": orgUUID, "amount": 2500, "token": memory.TokenChargeDeclined}
	resp = env.do(t, http.MethodPost, "/api/charges/", alice.token, declined)
	expectStatus(t, resp, http.StatusPaymentRequired)
	payload := decode[errorResponse](t, resp)
	if payload.Error.Message != "Your card was declined." {
		t.Fatalf("unexpected decline message %q", payload.Error.Message)
	}

	resp = env.do(t, http.MethodPost, "/api/charges/", alice.token, map[string]any{"organization": orgUUID, "amount": 10, "token": memory.TokenVisa})
	expectStatus(t, resp, http.StatusBadRequest)
	payload = decode[errorResponse](t, resp)
	if len(payload.Error.Errors) != 1 || payload.Error.Errors[0].Field != "amount" {
		t.Fatalf("expected amount validation error, got %+v", payload.Error)
	}

	body["description"] = "Staff adjustment"
	expectStatus(t, env.do(t, http.MethodPost, "/api/charges/", admin.token, body), http.StatusCreated)

	if n := countCharges(); n != 2 {
		t.Fatalf("expected 2 recorded charges, got %d", n)
	}

	resp = env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/charges/", alice.token, nil)
	expectStatus(t, resp, http.StatusOK)
	listed := decode[chargedomain.ListChargesResponse](t, resp)
	if len(listed.Results) != 2 || listed.Results[0].Description != "Staff adjustment" {
		t.Fatalf("unexpected charge list: %+v", listed.Results)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/organizations/"+orgUUID+"/charges/", bob.token, nil), http.StatusForbidden)

	resp = env.do(t, http.MethodGet, "/pp-api/charges/"+charge.ChargeID+"/receipt.pdf", alice.token, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("receipt is not a pdf document")
	}
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/charges/"+charge.ChargeID+"/receipt.pdf", bob.token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/charges/ch_missing/receipt.pdf", alice.token, nil), http.StatusNotFound)
}

func TestOrganizationTypesAreStaffOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	admin := env.staff(t, "perry")

	expectStatus(t, env.do(t, http.MethodPost, "/api/organization-types/", alice.token, map[string]string{"name": "News"}), http.StatusForbidden)

	resp := env.do(t, http.MethodPost, "/api/organization-types/", admin.token, map[string]string{"name": "News"})
	expectStatus(t, resp, http.StatusCreated)
	typ := decode[struct {
		ID string `json:"id"`
	}](t, resp)

	resp = env.do(t, http.MethodPost, "/api/organization-subtypes/", admin.token, map[string]string{"type": typ.ID, "name": "Local"})
	expectStatus(t, resp, http.StatusCreated)
	subtype := decode[struct {
		ID string `json:"id"`
	}](t, resp)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/organization-types/"+typ.ID+"/", admin.token, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodGet, "/api/organization-types/"+typ.ID+"/", admin.token, nil), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/organization-subtypes/"+subtype.ID+"/", admin.token, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/organization-types/"+typ.ID+"/", admin.token, nil), http.StatusNoContent)
}

func TestPlansAndEntitlements(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	admin := env.staff(t, "perry")

	expectStatus(t, env.do(t, http.MethodPost, "/pp-api/entitlements/", alice.token, map[string]any{"name": "Search", "slug": "search"}), http.StatusForbidden)

	resp := env.do(t, http.MethodPost, "/pp-api/entitlements/", admin.token, map[string]any{"name": "Search", "slug": "search"})
	expectStatus(t, resp, http.StatusCreated)
	entitlement := decode[struct {
		ID string `json:"id"`
	}](t, resp)

	resp = env.do(t, http.MethodPost, "/pp-api/plans/", admin.token, map[string]any{
		"name":           "Professional",
		"slug":           "professional",
		"base_price":     4000,
		"price_per_user": 1000,
		"minimum_users":  1,
		"public":         true,
		"entitlements":   []string{entitlement.ID},
	})
	expectStatus(t, resp, http.StatusCreated)
	plan := decode[struct {
		ID string `json:"id"`
	}](t, resp)

	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/plans/"+plan.ID+"/", "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/pp-api/entitlements/"+entitlement.ID+"/", "", nil), http.StatusOK)

	resp = env.do(t, http.MethodGet, "/pp-api/plans/", "", nil)
	expectStatus(t, resp, http.StatusOK)
	plans := decode[struct {
		Results []struct {
			Slug string `json:"slug"`
		} `json:"results"`
	}](t, resp)
	if len(plans.Results) != 1 || plans.Results[0].Slug != "professional" {
		t.Fatalf("unexpected plans: %+v", plans.Results)
	}
}

func TestDeleteUserRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	admin := env.staff(t, "perry")

	expectStatus(t, env.do(t, http.MethodDelete, "/api/users/"+bob.userUUID+"/", alice.token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/users/"+bob.userUUID+"/", admin.token, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/api/users/"+bob.userUUID+"/", admin.token, nil), http.StatusNotFound)

	// the deleted user's token no longer authenticates
	expectStatus(t, env.do(t, http.MethodGet, "/auth/me", bob.token, nil), http.StatusUnauthorized)
}

func TestPaymentWebhookUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodPost, "/webhooks/paypal", "", map[string]string{"id": "evt"}), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/webhooks/memory", "", map[string]string{"id": "evt"}), http.StatusNotFound)
}
