package wallet

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/pkg/response"
)

// GinHandlers contains HTTP handlers for wallet endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetWalletHandler returns the caller's balance.
func (h *GinHandlers) GetWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		w, err := h.service.GetWallet(clientID)
		if err != nil {
			if errors.Is(err, ErrWalletNotFound) {
				response.NotFound(c, "Wallet not found")
				return
			}
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, types.WalletResponse{
			ClientID:  w.ClientID,
			Balance:   w.Balance,
			UpdatedAt: w.UpdatedAt,
		})
	}
}

// GetTransactionsHandler returns the caller's ledger log, newest first.
func (h *GinHandlers) GetTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		txs, err := h.service.GetTransactions(clientID)
		response.Handle(c, txs, err)
	}
}

// CreateDepositHandler files a deposit request for the caller.
func (h *GinHandlers) CreateDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var request struct {
			Amount   decimal.Decimal `json:"amount" binding:"required"`
			Currency string          `json:"currency"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		req, err := h.service.CreateDepositRequest(clientID, request.Amount, request.Currency)
		if errors.Is(err, ErrNonPositiveAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, req, err)
	}
}

// MarkDepositSentHandler records the caller's claim that the transfer was
// made.
func (h *GinHandlers) MarkDepositSentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		depositID := c.Param("deposit_id")

		var request struct {
			BlockchainTxID string `json:"blockchain_tx_id"`
		}
		if err := c.ShouldBindJSON(&request); err != nil && err.Error() != "EOF" {
			response.BadRequest(c, err.Error())
			return
		}

		req, err := h.service.MarkDepositSent(clientID, depositID, request.BlockchainTxID)
		if errors.Is(err, ErrDepositNotActionable) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, req, err)
	}
}

// ListDepositsHandler returns the caller's deposit requests.
func (h *GinHandlers) ListDepositsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		reqs, err := h.service.GetClientDepositRequests(clientID)
		response.Handle(c, reqs, err)
	}
}

// ConfirmDepositHandler is the internal operator action that settles a
// deposit and credits the wallet.
func (h *GinHandlers) ConfirmDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depositID := c.Param("deposit_id")

		var request struct {
			Note string `json:"note"`
		}
		if err := c.ShouldBindJSON(&request); err != nil && err.Error() != "EOF" {
			response.BadRequest(c, err.Error())
			return
		}

		req, err := h.service.ConfirmDeposit(depositID, request.Note)
		if errors.Is(err, ErrDepositNotActionable) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, req, err)
	}
}

// RejectDepositHandler is the internal operator action that fails a deposit
// request without crediting anything.
func (h *GinHandlers) RejectDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depositID := c.Param("deposit_id")

		var request struct {
			Note string `json:"note"`
		}
		if err := c.ShouldBindJSON(&request); err != nil && err.Error() != "EOF" {
			response.BadRequest(c, err.Error())
			return
		}

		req, err := h.service.RejectDeposit(depositID, request.Note)
		if errors.Is(err, ErrDepositNotActionable) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, req, err)
	}
}
