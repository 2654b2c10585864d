// Package domain contains persistence models for charges.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer maps an organization to its customer record at a processor.
type Customer struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	OrganizationID      snowflake.ID `gorm:"not null;uniqueIndex:ux_customers_org_provider,priority:1"`
	Provider            string       `gorm:"size:32;not null;uniqueIndex:ux_customers_org_provider,priority:2"`
	ProcessorCustomerID string       `gorm:"size:255;not null"`
	CreatedAt           time.Time    `gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

// Charge is a successful processor charge recorded against an organization.
// Amounts are in the currency's minor unit.
type Charge struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	ChargeID       string       `gorm:"size:255;not null;uniqueIndex:ux_charges_charge_id"`
	OrganizationID snowflake.ID `gorm:"not null;index"`
	Provider       string       `gorm:"size:32;not null"`
	Amount         int64        `gorm:"not null"`
	FeeAmount      int64        `gorm:"not null;default:0"`
	Currency       string       `gorm:"size:3;not null"`
	Description    string       `gorm:"size:255;not null;default:''"`
	Card           string       `gorm:"size:64;not null;default:''"`
	Created        time.Time    `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null"`
}

func (Charge) TableName() string { return "charges" }
