package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade attempt lifecycle. An attempt is terminal once it reaches completed,
// failed or partially_completed and is never mutated afterwards.
const (
	AttemptStatusPending            = "pending"
	AttemptStatusInProgress         = "in_progress"
	AttemptStatusCompleted          = "completed"
	AttemptStatusFailed             = "failed"
	AttemptStatusPartiallyCompleted = "partially_completed"
)

// Order leg lifecycle. pending means not yet sent to the exchange, new means
// sent and acknowledged; partially_filled is a transient state between new
// and filled.
const (
	LegStatusPending         = "pending"
	LegStatusNew             = "new"
	LegStatusPartiallyFilled = "partially_filled"
	LegStatusFilled          = "filled"
	LegStatusCanceled        = "canceled"
	LegStatusRejected        = "rejected"
	LegStatusExpired         = "expired"
	LegStatusError           = "error"
)

// TradeAttempt is one attempt to execute a full triangular arbitrage cycle.
// OpportunityJSON carries an immutable snapshot of the opportunity exactly as
// it was at the time of the attempt.
type TradeAttempt struct {
	gorm.Model         `json:"-"`
	AttemptID          string          `gorm:"uniqueIndex" json:"attempt_id"`
	ClientID           string          `gorm:"index" json:"client_id"`
	Exchange           string          `json:"exchange"`
	OpportunityJSON    string          `json:"-"`
	Status             string          `json:"status"`
	StartAmount        decimal.Decimal `gorm:"type:decimal(19,8)" json:"start_amount"`
	FinalAmount        decimal.Decimal `gorm:"type:decimal(19,8)" json:"final_amount"`
	CalculatedProfit   decimal.Decimal `gorm:"type:decimal(19,8)" json:"calculated_profit"`
	ActualProfit       decimal.Decimal `gorm:"type:decimal(19,8)" json:"actual_profit"`
	CommissionDeducted decimal.Decimal `gorm:"type:decimal(19,8)" json:"commission_deducted"`
	AdminNotes         string          `json:"-"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	Legs               []OrderLeg      `gorm:"foreignKey:AttemptID;references:AttemptID" json:"legs,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Terminal reports whether the attempt has reached a final status.
func (a *TradeAttempt) Terminal() bool {
	switch a.Status {
	case AttemptStatusCompleted, AttemptStatusFailed, AttemptStatusPartiallyCompleted:
		return true
	}
	return false
}

// OrderLeg is one of the three sequential trades comprising an attempt.
// (attempt_id, leg_number) is unique: an attempt has at most one leg per slot.
type OrderLeg struct {
	gorm.Model       `json:"-"`
	AttemptID        string          `gorm:"index:idx_attempt_leg,unique" json:"attempt_id"`
	LegNumber        int             `gorm:"index:idx_attempt_leg,unique" json:"leg_number"`
	Exchange         string          `json:"exchange"`
	Pair             string          `json:"pair"`
	Side             string          `json:"side"`
	IntendedQuantity decimal.Decimal `gorm:"type:decimal(19,8)" json:"intended_quantity"`
	IntendedPrice    decimal.Decimal `gorm:"type:decimal(19,8)" json:"intended_price"`
	ExecutedQuantity decimal.Decimal `gorm:"type:decimal(19,8)" json:"executed_quantity"`
	ExecutedPriceAvg decimal.Decimal `gorm:"type:decimal(19,8)" json:"executed_price_avg"`
	ExchangeOrderID  string          `gorm:"index" json:"exchange_order_id,omitempty"`
	Status           string          `json:"status"`
	FeeAmount        decimal.Decimal `gorm:"type:decimal(19,8)" json:"fee_amount"`
	FeeCurrency      string          `json:"fee_currency,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
