package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectMembership   = "membership"
	ObjectCharge       = "charge"
	ObjectChangeLog    = "change_log"
)

const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Orgs     orgdomain.Repository
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	orgs     orgdomain.Repository
}

// NewEnforcer builds an enforcer whose grouping policies persist through the
// gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		orgs:     p.Orgs,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID, orgID snowflake.ID, object, action string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.Role(ctx, userID, orgID)
	if err != nil {
		return err
	}
	if role == "" {
		s.denied(userID, orgID, object, action)
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%s", userID)
	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, "role:"+role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(userID, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Role(ctx context.Context, userID, orgID snowflake.ID) (string, error) {
	m, err := s.orgs.FindMembership(ctx, s.db, orgID, userID)
	if err != nil {
		return "", err
	}
	switch {
	case m == nil:
		return "", nil
	case m.Admin:
		return RoleAdmin, nil
	default:
		return RoleMember, nil
	}
}

// ensureGrouping keeps exactly one role link for the subject in the domain.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) denied(userID, orgID snowflake.ID, object, action string) {
	s.log.Debug("authorization denied",
		zap.String("user_id", userID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("object", object),
		zap.String("action", action),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	member := [][]string{
		{ObjectOrganization, ActionRead},
		{ObjectMembership, ActionRead},
	}
	admin := append([][]string{
		{ObjectOrganization, ActionUpdate},
		{ObjectOrganization, ActionDelete},
		{ObjectMembership, ActionCreate},
		{ObjectMembership, ActionUpdate},
		{ObjectMembership, ActionDelete},
		{ObjectCharge, ActionCreate},
		{ObjectCharge, ActionRead},
		{ObjectChangeLog, ActionRead},
	}, member...)

	for _, role := range []struct {
		name  string
		rules [][]string
	}{
		{"role:" + RoleMember, member},
		{"role:" + RoleAdmin, admin},
	} {
		for _, rule := range role.rules {
			has, err := enforcer.HasPolicy(role.name, rule[0], rule[1])
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddPolicy(role.name, rule[0], rule[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
