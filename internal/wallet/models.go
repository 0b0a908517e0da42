package wallet

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger transaction types.
const (
	TxTypeCredit = "credit"
	TxTypeDebit  = "debit"
)

// Deposit request lifecycle. A request starts pending_user_action (the user
// still has to make the transfer), moves to pending_confirmation once the
// user reports it sent, and is resolved by an operator or expired by the
// background processor.
const (
	DepositStatusPendingUserAction   = "pending_user_action"
	DepositStatusPendingConfirmation = "pending_confirmation"
	DepositStatusCompleted           = "completed"
	DepositStatusFailed              = "failed"
	DepositStatusExpired             = "expired"
)

// Wallet is a client's internal credit balance. Balance never goes below
// zero; every mutation appends a WalletTransaction in the same database
// transaction.
type Wallet struct {
	gorm.Model `json:"-"`
	ClientID   string          `gorm:"uniqueIndex" json:"client_id"`
	Balance    decimal.Decimal `gorm:"type:decimal(19,8)" json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// WalletTransaction is one immutable ledger entry. Entries are never updated
// or deleted after creation; the wallet balance always equals the net sum of
// its entries plus the initial balance.
type WalletTransaction struct {
	gorm.Model    `json:"-"`
	TransactionID string          `gorm:"uniqueIndex" json:"transaction_id"`
	ClientID      string          `gorm:"index" json:"client_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(19,8)" json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"timestamp"`
}

// DepositRequest tracks an off-platform transfer a client intends to make to
// fund their wallet. Confirmation credits the wallet atomically.
type DepositRequest struct {
	gorm.Model     `json:"-"`
	DepositID      string          `gorm:"uniqueIndex" json:"deposit_id"`
	ClientID       string          `gorm:"index" json:"client_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(19,8)" json:"amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	BlockchainTxID string          `json:"blockchain_tx_id,omitempty"`
	AdminNotes     string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
