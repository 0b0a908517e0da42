package database

import (
	"github.com/triarb/triarb-api/internal/auth"
	"github.com/triarb/triarb-api/internal/rules"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/internal/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite database at the given path and migrates the
// full schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema to an already-open connection. Tests use it
// against in-memory databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&auth.Credential{},
		&types.TradeAttempt{},
		&types.OrderLeg{},
		&wallet.Wallet{},
		&wallet.WalletTransaction{},
		&wallet.DepositRequest{},
		&rules.PairRule{},
	)
}
