package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/charge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const (
	customerColumns = `id, organization_id, provider, processor_customer_id, created_at`
	chargeColumns   = `id, charge_id, organization_id, provider, amount, fee_amount, currency, description, card, created, created_at`
)

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?)`,
		customer.ID,
		customer.OrganizationID,
		customer.Provider,
		customer.ProcessorCustomerID,
		customer.CreatedAt,
	).Error
}

func (r *repo) FindCustomer(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE organization_id = ? AND provider = ?`,
		orgID,
		provider,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) FindCustomerByProcessorID(ctx context.Context, db *gorm.DB, provider, processorCustomerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE provider = ? AND processor_customer_id = ?`,
		provider,
		processorCustomerID,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO charges (`+chargeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.ChargeID,
		charge.OrganizationID,
		charge.Provider,
		charge.Amount,
		charge.FeeAmount,
		charge.Currency,
		charge.Description,
		charge.Card,
		charge.Created,
		charge.CreatedAt,
	).Error
}

func (r *repo) FindByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*domain.Charge, error) {
	var charge domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+` FROM charges WHERE charge_id = ?`,
		chargeID,
	).Scan(&charge).Error
	if err != nil {
		return nil, err
	}
	if charge.ID == 0 {
		return nil, nil
	}
	return &charge, nil
}

// ListByOrganization returns newest first; afterID pages toward older rows.
func (r *repo) ListByOrganization(ctx context.Context, db *gorm.DB, orgID, afterID snowflake.ID, limit int) ([]domain.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE organization_id = ?`
	args := []any{orgID}
	if afterID != 0 {
		query += ` AND id < ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var charges []domain.Charge
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}
