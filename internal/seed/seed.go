package seed

import (
	"context"
	"errors"
	"strings"

	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"go.uber.org/zap"
)

const defaultAdminUsername = "admin"

var defaultPlans = []catalogdomain.CreatePlanRequest{
	{
		Name:         "Free",
		Slug:         "free",
		MinimumUsers: 1,
		Public:       true,
	},
}

// EnsureCatalog creates the default plans. Plans that already exist are left untouched.
func EnsureCatalog(ctx context.Context, catalog catalogdomain.Service, log *zap.Logger) error {
	for _, plan := range defaultPlans {
		_, err := catalog.CreatePlan(ctx, plan)
		switch {
		case err == nil:
			log.Info("seeded plan", zap.String("slug", plan.Slug))
		case errors.Is(err, catalogdomain.ErrDuplicatePlan):
		default:
			return err
		}
	}
	return nil
}

// EnsureStaff creates a staff user with a password login, together with its
// individual organization, unless the username or email is already taken.
func EnsureStaff(ctx context.Context, users userdomain.Service, log *zap.Logger, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if password == "" {
		return errors.New("seed admin password is required")
	}

	user, err := users.Create(ctx, userdomain.CreateUserRequest{
		Username: defaultAdminUsername,
		Name:     "Administrator",
		Email:    email,
		Password: password,
		IsStaff:  true,
	})
	if err != nil {
		if errors.Is(err, userdomain.ErrDuplicateUser) {
			return nil
		}
		return err
	}

	log.Info("seeded staff user", zap.String("user_uuid", user.UUID))
	return nil
}
