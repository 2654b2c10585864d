package migration

import (
	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	chargedomain "github.com/smallbiznis/accounts/internal/charge/domain"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	orgtypedomain "github.com/smallbiznis/accounts/internal/orgtype/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&catalogdomain.Entitlement{},
		&catalogdomain.Plan{},
		&catalogdomain.PlanEntitlement{},
		&orgdomain.Organization{},
		&orgdomain.Membership{},
		&orgdomain.ReceiptEmail{},
		&orgdomain.ChangeLog{},
		&orgtypedomain.OrganizationType{},
		&orgtypedomain.OrganizationSubtype{},
		&orgtypedomain.SubtypeAssignment{},
		&chargedomain.Customer{},
		&chargedomain.Charge{},
	}
}

// AutoMigrate creates the schema from the models. It backs sqlite and mysql
// setups and the test suites; postgres uses the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
