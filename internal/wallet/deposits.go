package wallet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var ErrDepositNotActionable = errors.New("deposit request is not in an actionable state")

// CreateDepositRequest files a new deposit intent for the client. The wallet
// is only credited once an operator confirms the transfer arrived.
func (s *Service) CreateDepositRequest(clientID string, amount decimal.Decimal, currency string) (*DepositRequest, error) {
	if amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if currency == "" {
		currency = "USDT"
	}

	req := &DepositRequest{
		DepositID: "DEP_" + uuid.New().String(),
		ClientID:  clientID,
		Amount:    amount,
		Currency:  currency,
		Status:    DepositStatusPendingUserAction,
	}
	if err := s.db.CreateDepositRequest(req); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "wallet").
		Str("deposit_id", req.DepositID).
		Str("client_id", clientID).
		Str("amount", amount.String()).
		Msg("deposit request created")
	return req, nil
}

// MarkDepositSent records that the client claims to have made the transfer,
// optionally with the blockchain transaction id, moving the request to
// pending_confirmation.
func (s *Service) MarkDepositSent(clientID, depositID, blockchainTxID string) (*DepositRequest, error) {
	req, err := s.db.GetDepositRequest(depositID)
	if err != nil {
		return nil, err
	}
	if req.ClientID != clientID {
		return nil, ErrDepositNotActionable
	}
	if req.Status != DepositStatusPendingUserAction {
		return nil, ErrDepositNotActionable
	}

	req.Status = DepositStatusPendingConfirmation
	req.BlockchainTxID = blockchainTxID
	if err := s.db.UpdateDepositRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ConfirmDeposit is the operator action that settles a deposit: the wallet is
// credited and the request marked completed. The credit and its ledger entry
// are atomic; the status flip follows and is retried on the request record if
// it fails.
func (s *Service) ConfirmDeposit(depositID, adminNote string) (*DepositRequest, error) {
	req, err := s.db.GetDepositRequest(depositID)
	if err != nil {
		return nil, err
	}
	if req.Status != DepositStatusPendingConfirmation && req.Status != DepositStatusPendingUserAction {
		return nil, ErrDepositNotActionable
	}

	description := fmt.Sprintf("Deposit %s confirmed (%s %s)", req.DepositID, req.Amount.String(), req.Currency)
	if _, err := s.AddCredit(req.ClientID, req.Amount, description); err != nil {
		return nil, err
	}

	req.Status = DepositStatusCompleted
	if adminNote != "" {
		req.AdminNotes = adminNote
	}
	if err := s.db.UpdateDepositRequest(req); err != nil {
		// Wallet already credited; surface the inconsistency loudly.
		log.Error().Err(err).
			Str("deposit_id", req.DepositID).
			Msg("wallet credited but deposit status update failed")
		return nil, err
	}
	return req, nil
}

// RejectDeposit marks a deposit request failed without touching the wallet.
func (s *Service) RejectDeposit(depositID, adminNote string) (*DepositRequest, error) {
	req, err := s.db.GetDepositRequest(depositID)
	if err != nil {
		return nil, err
	}
	if req.Status == DepositStatusCompleted {
		return nil, ErrDepositNotActionable
	}

	req.Status = DepositStatusFailed
	req.AdminNotes = adminNote
	if err := s.db.UpdateDepositRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetClientDepositRequests lists a client's deposit requests, newest first.
func (s *Service) GetClientDepositRequests(clientID string) ([]DepositRequest, error) {
	return s.db.GetClientDepositRequests(clientID)
}
