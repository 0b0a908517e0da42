package wallet

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/events"
	"github.com/triarb/triarb-api/internal/types"
	"gorm.io/gorm"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance for deduction")
)

// Service is the wallet ledger. All mutations to one wallet serialize on a
// per-client mutex and run inside a single database transaction, so the
// balance can never go negative and the transaction log always reconciles
// with the balance.
type Service struct {
	db  *Database
	bus *events.Bus

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(gormDB *gorm.DB, bus *events.Bus) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		bus:   bus,
		locks: make(map[string]*sync.Mutex),
	}
}

// Provision creates a zero-balance wallet for a new client. Creating a
// wallet that already exists is not an error.
func (s *Service) Provision(clientID string) error {
	if _, err := s.db.GetWallet(clientID); err == nil {
		return nil
	} else if !errors.Is(err, ErrWalletNotFound) {
		return err
	}
	return s.db.CreateWallet(&Wallet{ClientID: clientID, Balance: decimal.Zero})
}

// GetWallet returns the current wallet state for a client.
func (s *Service) GetWallet(clientID string) (*Wallet, error) {
	return s.db.GetWallet(clientID)
}

// GetTransactions returns the client's ledger entries, newest first.
func (s *Service) GetTransactions(clientID string) ([]WalletTransaction, error) {
	return s.db.GetTransactions(clientID)
}

// AddCredit atomically increments the balance and appends a credit entry.
// Both effects happen together or not at all.
func (s *Service) AddCredit(clientID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return s.mutate(clientID, TxTypeCredit, amount, description)
}

// DeductCredit atomically verifies balance >= amount, decrements the balance
// and appends a debit entry. On insufficient balance nothing is mutated and
// ErrInsufficientBalance is returned.
func (s *Service) DeductCredit(clientID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return s.mutate(clientID, TxTypeDebit, amount, description)
}

func (s *Service) mutate(clientID, txType string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrNonPositiveAmount
	}

	lock := s.lockFor(clientID)
	lock.Lock()
	defer lock.Unlock()

	var newBalance decimal.Decimal
	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		var w Wallet
		if err := tx.Where("client_id = ?", clientID).First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}

		switch txType {
		case TxTypeCredit:
			w.Balance = w.Balance.Add(amount)
		case TxTypeDebit:
			if w.Balance.LessThan(amount) {
				return ErrInsufficientBalance
			}
			w.Balance = w.Balance.Sub(amount)
		}

		if err := tx.Model(&Wallet{}).Where("client_id = ?", clientID).
			Update("balance", w.Balance).Error; err != nil {
			return err
		}

		entry := WalletTransaction{
			TransactionID: "WTX_" + uuid.New().String(),
			ClientID:      clientID,
			Type:          txType,
			Amount:        amount,
			Description:   description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		newBalance = w.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Info().
		Str("service", "wallet").
		Str("client_id", clientID).
		Str("type", txType).
		Str("amount", amount.String()).
		Str("balance", newBalance.String()).
		Msg("wallet mutated")

	s.bus.Publish(events.Event{
		Type:     events.TypeWalletUpdated,
		ClientID: clientID,
		Payload: types.WalletResponse{
			ClientID: clientID,
			Balance:  newBalance,
		},
	})
	return newBalance, nil
}

func (s *Service) lockFor(clientID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[clientID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[clientID] = lock
	}
	return lock
}
