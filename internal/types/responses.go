package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanResponse is the payload returned by the scan endpoint.
type ScanResponse struct {
	BaseCoin      string          `json:"base_coin"`
	StartAmount   decimal.Decimal `json:"start_amount"`
	Exchanges     []string        `json:"exchanges"`
	Opportunities []Opportunity   `json:"opportunities"`
	ScannedAt     time.Time       `json:"scanned_at"`
}

// WalletResponse is the read-only wallet state exposed to clients.
type WalletResponse struct {
	ClientID  string          `json:"client_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
