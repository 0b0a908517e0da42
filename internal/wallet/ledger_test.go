package wallet

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "wallet_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Wallet{}, &WalletTransaction{}, &DepositRequest{}))
	return NewService(db, nil)
}

func TestLedger(t *testing.T) {
	d := decimal.RequireFromString

	t.Run("provision is idempotent", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))
		require.NoError(t, svc.Provision("CLI_a"))

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero())
	})

	t.Run("credit and debit adjust the balance", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		balance, err := svc.AddCredit("CLI_a", d("100.5"), "deposit")
		require.NoError(t, err)
		assert.True(t, balance.Equal(d("100.5")))

		balance, err = svc.DeductCredit("CLI_a", d("40.5"), "commission")
		require.NoError(t, err)
		assert.True(t, balance.Equal(d("60")))
	})

	t.Run("over-balance debit mutates nothing", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))
		_, err := svc.AddCredit("CLI_a", d("10"), "deposit")
		require.NoError(t, err)

		_, err = svc.DeductCredit("CLI_a", d("10.00000001"), "too much")
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(d("10")))

		txs, err := svc.GetTransactions("CLI_a")
		require.NoError(t, err)
		assert.Len(t, txs, 1, "failed debit must not append a ledger entry")
	})

	t.Run("zero and negative amounts are rejected", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		_, err := svc.AddCredit("CLI_a", decimal.Zero, "nothing")
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
		_, err = svc.DeductCredit("CLI_a", d("-5"), "negative")
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.AddCredit("CLI_ghost", d("5"), "deposit")
		assert.ErrorIs(t, err, ErrWalletNotFound)
		_, err = svc.GetWallet("CLI_ghost")
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("transaction log reconciles with the balance", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		_, err := svc.AddCredit("CLI_a", d("100"), "deposit")
		require.NoError(t, err)
		_, err = svc.DeductCredit("CLI_a", d("12.5"), "commission")
		require.NoError(t, err)
		_, err = svc.AddCredit("CLI_a", d("3"), "refund")
		require.NoError(t, err)

		txs, err := svc.GetTransactions("CLI_a")
		require.NoError(t, err)
		require.Len(t, txs, 3)

		sum := decimal.Zero
		for _, tx := range txs {
			switch tx.Type {
			case TxTypeCredit:
				sum = sum.Add(tx.Amount)
			case TxTypeDebit:
				sum = sum.Sub(tx.Amount)
			}
		}

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(sum), "balance %s, ledger sum %s", w.Balance, sum)
	})

	t.Run("concurrent debits never drive the balance negative", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))
		_, err := svc.AddCredit("CLI_a", d("100"), "deposit")
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		succeeded := make(chan struct{}, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Each debit takes 10; only 10 of 20 can succeed.
				if _, err := svc.DeductCredit("CLI_a", d("10"), "drain"); err == nil {
					succeeded <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(succeeded)

		count := 0
		for range succeeded {
			count++
		}
		assert.Equal(t, 10, count)

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero(), "balance %s", w.Balance)
	})
}
