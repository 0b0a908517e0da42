package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositLifecycle(t *testing.T) {
	d := decimal.RequireFromString

	t.Run("confirmed deposit credits the wallet", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		req, err := svc.CreateDepositRequest("CLI_a", d("250"), "USDT")
		require.NoError(t, err)
		assert.Equal(t, DepositStatusPendingUserAction, req.Status)

		req, err = svc.MarkDepositSent("CLI_a", req.DepositID, "0xabc123")
		require.NoError(t, err)
		assert.Equal(t, DepositStatusPendingConfirmation, req.Status)
		assert.Equal(t, "0xabc123", req.BlockchainTxID)

		req, err = svc.ConfirmDeposit(req.DepositID, "verified on chain")
		require.NoError(t, err)
		assert.Equal(t, DepositStatusCompleted, req.Status)

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(d("250")))

		txs, err := svc.GetTransactions("CLI_a")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, TxTypeCredit, txs[0].Type)
	})

	t.Run("rejected deposit never credits", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		req, err := svc.CreateDepositRequest("CLI_a", d("250"), "USDT")
		require.NoError(t, err)

		req, err = svc.RejectDeposit(req.DepositID, "no transfer received")
		require.NoError(t, err)
		assert.Equal(t, DepositStatusFailed, req.Status)

		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero())
	})

	t.Run("completed deposit cannot be confirmed or rejected again", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		req, err := svc.CreateDepositRequest("CLI_a", d("50"), "USDT")
		require.NoError(t, err)
		_, err = svc.ConfirmDeposit(req.DepositID, "")
		require.NoError(t, err)

		_, err = svc.ConfirmDeposit(req.DepositID, "")
		assert.ErrorIs(t, err, ErrDepositNotActionable)
		_, err = svc.RejectDeposit(req.DepositID, "")
		assert.ErrorIs(t, err, ErrDepositNotActionable)

		// The double confirm must not have credited twice.
		w, err := svc.GetWallet("CLI_a")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(d("50")))
	})

	t.Run("only the owner can mark a deposit sent", func(t *testing.T) {
		svc := newTestService(t)
		require.NoError(t, svc.Provision("CLI_a"))

		req, err := svc.CreateDepositRequest("CLI_a", d("10"), "USDT")
		require.NoError(t, err)

		_, err = svc.MarkDepositSent("CLI_b", req.DepositID, "0xdef")
		assert.ErrorIs(t, err, ErrDepositNotActionable)
	})

	t.Run("non-positive deposit amounts are rejected", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.CreateDepositRequest("CLI_a", decimal.Zero, "USDT")
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})

	t.Run("deposit listing is per client", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.CreateDepositRequest("CLI_a", d("1"), "USDT")
		require.NoError(t, err)
		_, err = svc.CreateDepositRequest("CLI_a", d("2"), "USDT")
		require.NoError(t, err)
		_, err = svc.CreateDepositRequest("CLI_b", d("3"), "USDT")
		require.NoError(t, err)

		reqs, err := svc.GetClientDepositRequests("CLI_a")
		require.NoError(t, err)
		assert.Len(t, reqs, 2)
	})
}

func TestProcessorExpiresStaleRequests(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Provision("CLI_a"))

	fresh, err := svc.CreateDepositRequest("CLI_a", decimal.NewFromInt(5), "USDT")
	require.NoError(t, err)

	stale, err := svc.CreateDepositRequest("CLI_a", decimal.NewFromInt(9), "USDT")
	require.NoError(t, err)
	// Backdate the stale request past the expiry window.
	require.NoError(t, svc.db.db.Model(&DepositRequest{}).
		Where("deposit_id = ?", stale.DepositID).
		Update("created_at", "2020-01-01 00:00:00").Error)

	p := NewProcessor(svc)
	require.NoError(t, p.expireStaleRequests())

	reqs, err := svc.GetClientDepositRequests("CLI_a")
	require.NoError(t, err)
	byID := make(map[string]string, len(reqs))
	for _, r := range reqs {
		byID[r.DepositID] = r.Status
	}
	assert.Equal(t, DepositStatusExpired, byID[stale.DepositID])
	assert.Equal(t, DepositStatusPendingUserAction, byID[fresh.DepositID])
}
