package signup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authservice "github.com/smallbiznis/accounts/internal/auth/service"
	"github.com/smallbiznis/accounts/internal/auth/token"
	catalogrepository "github.com/smallbiznis/accounts/internal/catalog/repository"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/migration"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	orgrepository "github.com/smallbiznis/accounts/internal/organization/repository"
	orgservice "github.com/smallbiznis/accounts/internal/organization/service"
	orgtyperepository "github.com/smallbiznis/accounts/internal/orgtype/repository"
	orgtypeservice "github.com/smallbiznis/accounts/internal/orgtype/service"
	"github.com/smallbiznis/accounts/internal/signup/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	userrepository "github.com/smallbiznis/accounts/internal/user/repository"
	userservice "github.com/smallbiznis/accounts/internal/user/service"
	dbpkg "github.com/smallbiznis/accounts/pkg/db"
	"go.uber.org/zap"
)

type harness struct {
	svc    domain.Service
	orgs   orgdomain.Service
	issuer *token.Issuer
}

func newHarness(t *testing.T) harness {
	t.Helper()

	db, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create id generator: %v", err)
	}
	issuer, err := token.NewIssuer(config.Config{AppName: "accounts", AuthJWTSecret: "secret", AuthTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	log := zap.NewNop()
	typeRepo := orgtyperepository.Provide()
	orgRepo := orgrepository.Provide()
	orgs := orgservice.New(orgservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     orgRepo,
		Plans:    catalogrepository.Provide(),
		Types:    typeRepo,
		Subtypes: orgtypeservice.New(orgtypeservice.Params{DB: db, Log: log, GenID: node, Repo: typeRepo}),
	})
	users := userservice.New(userservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    userrepository.Provide(),
		Orgs:    orgs,
		OrgRepo: orgRepo,
	})
	auth := authservice.New(authservice.Params{Log: log, Users: users, Issuer: issuer})

	return harness{
		svc:    NewService(Params{Log: log, Auth: auth, Users: users, Orgs: orgs}),
		orgs:   orgs,
		issuer: issuer,
	}
}

func TestSignupCreatesUserAndIssuesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Signup(ctx, domain.Request{
		Username: "clark",
		Name:     "Clark Kent",
		Email:    "clark@example.com",
		Password: "smallville-1938",
		OrgName:  "Daily Planet",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if result.IndividualOrganization == "" || result.Organization == "" {
		t.Fatalf("expected both organizations, got %+v", result)
	}

	claims, err := h.issuer.Parse(result.Token)
	if err != nil {
		t.Fatalf("token did not parse: %v", err)
	}
	if claims.Subject != result.User {
		t.Fatalf("expected subject %s, got %s", result.User, claims.Subject)
	}

	org, err := h.orgs.Resolve(ctx, result.Organization)
	if err != nil {
		t.Fatalf("resolve organization: %v", err)
	}
	if org.Name != "Daily Planet" || org.Individual {
		t.Fatalf("unexpected organization %+v", org)
	}
}

func TestSignupWithoutOrganization(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.Signup(context.Background(), domain.Request{
		Username: "lana",
		Email:    "lana@example.com",
		Password: "smallville-1938",
		Source:   userdomain.SourceDocumentCloud,
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if result.Organization != "" {
		t.Fatalf("expected no group organization, got %s", result.Organization)
	}
}

func TestSignupRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Signup(ctx, domain.Request{Username: "x"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	req := domain.Request{Username: "pete", Email: "pete@example.com", Password: "smallville-1938"}
	if _, err := h.svc.Signup(ctx, req); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	if _, err := h.svc.Signup(ctx, req); !errors.Is(err, userdomain.ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}
