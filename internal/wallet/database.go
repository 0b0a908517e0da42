package wallet

import (
	"errors"
	"strconv"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetWallet(clientID string) (*Wallet, error) {
	var w Wallet
	if err := d.db.Where("client_id = ?", clientID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (d *Database) CreateWallet(w *Wallet) error {
	return d.db.Create(w).Error
}

func (d *Database) GetTransactions(clientID string) ([]WalletTransaction, error) {
	var txs []WalletTransaction
	if err := d.db.Where("client_id = ?", clientID).
		Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (d *Database) CreateDepositRequest(req *DepositRequest) error {
	return d.db.Create(req).Error
}

func (d *Database) GetDepositRequest(depositID string) (*DepositRequest, error) {
	var req DepositRequest
	if err := d.db.Where("deposit_id = ?", depositID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (d *Database) UpdateDepositRequest(req *DepositRequest) error {
	return d.db.Save(req).Error
}

func (d *Database) GetClientDepositRequests(clientID string) ([]DepositRequest, error) {
	var reqs []DepositRequest
	if err := d.db.Where("client_id = ?", clientID).
		Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (d *Database) GetStaleDepositRequests(olderThanHours int) ([]DepositRequest, error) {
	var reqs []DepositRequest
	if err := d.db.
		Where("status IN ?", []string{DepositStatusPendingUserAction, DepositStatusPendingConfirmation}).
		Where("created_at < datetime('now', ?)", "-"+strconv.Itoa(olderThanHours)+" hours").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
