package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCustomer(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindCustomer(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider string) (*Customer, error)
	FindCustomerByProcessorID(ctx context.Context, db *gorm.DB, provider, processorCustomerID string) (*Customer, error)

	Insert(ctx context.Context, db *gorm.DB, charge *Charge) error
	FindByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*Charge, error)
	ListByOrganization(ctx context.Context, db *gorm.DB, orgID, afterID snowflake.ID, limit int) ([]Charge, error)
}
