package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows organization listings. Private organizations are only
// returned when IncludeAllPrivate is set or MemberID belongs to them.
type ListFilter struct {
	MemberID          snowflake.ID
	IncludeAllPrivate bool
	Individual        *bool
	AfterID           snowflake.ID
	Limit             int
}

// Repository reads and writes organizations and their owned rows. Every method
// takes the handle to run on so callers can compose them inside one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	Update(ctx context.Context, db *gorm.DB, org *Organization) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*Organization, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, uuid string) (*Organization, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Organization, error)

	InsertMembership(ctx context.Context, db *gorm.DB, m *Membership) error
	FindMembership(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*Membership, error)
	UpdateMembershipAdmin(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, admin bool) (int64, error)
	DeleteMembership(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (int64, error)
	DeleteMembershipsByOrganization(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
	DeleteMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) error
	CountAdmins(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	CountMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	ListMembers(ctx context.Context, db *gorm.DB, orgID, afterID snowflake.ID, limit int) ([]MemberRecord, error)
	FindMember(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*MemberRecord, error)

	InsertReceiptEmail(ctx context.Context, db *gorm.DB, email *ReceiptEmail) error
	ListReceiptEmails(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ReceiptEmail, error)
	DeleteReceiptEmails(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error

	InsertChangeLog(ctx context.Context, db *gorm.DB, log *ChangeLog) error
	ListChangeLogs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ChangeLog, error)
	DeleteChangeLogs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error

	CountCharges(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	DeleteCustomers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
}
