package asset

import (
	"time"

	"github.com/google/uuid"
)

// Asset is a registered (code, scale) pair. The unit column is a serial tag
// handed to the ledger engine; its sequence may have gaps because row
// insertion is not rolled back when engine balance creation fails.
type Asset struct {
	Unit                int32     `gorm:"column:unit;primaryKey;autoIncrement"`
	ID                  uuid.UUID `gorm:"column:id;uniqueIndex"`
	Code                string    `gorm:"column:code;uniqueIndex:idx_assets_code_scale"`
	Scale               int32     `gorm:"column:scale;uniqueIndex:idx_assets_code_scale"`
	LiquidityBalanceID  uuid.UUID `gorm:"column:liquidity_balance_id"`
	SettlementBalanceID uuid.UUID `gorm:"column:settlement_balance_id"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}
