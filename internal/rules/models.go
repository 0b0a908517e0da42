package rules

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PairRule holds the precision and minimum-size constraints an exchange
// enforces for one trading pair. The engine consults these before sizing
// every order leg.
type PairRule struct {
	gorm.Model    `json:"-"`
	Exchange      string          `gorm:"index:idx_exchange_pair,unique" json:"exchange"`
	Pair          string          `gorm:"index:idx_exchange_pair,unique" json:"pair"`
	BasePrecision int             `json:"base_precision"`
	MinQty        decimal.Decimal `gorm:"type:decimal(19,8)" json:"min_qty"`
	MinNotional   decimal.Decimal `gorm:"type:decimal(19,8)" json:"min_notional"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
