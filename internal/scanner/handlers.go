package scanner

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/pkg/response"
)

// GinHandlers contains HTTP handlers for opportunity scanning
type GinHandlers struct {
	service     *Service
	baseCoin    string
	startAmount decimal.Decimal
}

// NewGinHandlers creates scan handlers with the configured defaults for base
// coin and start amount.
func NewGinHandlers(service *Service, defaultBaseCoin string, defaultStartAmount decimal.Decimal) *GinHandlers {
	return &GinHandlers{
		service:     service,
		baseCoin:    defaultBaseCoin,
		startAmount: defaultStartAmount,
	}
}

// ScanHandler handles GET requests for arbitrage opportunities.
// Query parameters: exchanges (comma separated), base_coin, start_amount.
func (h *GinHandlers) ScanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		baseCoin := c.DefaultQuery("base_coin", h.baseCoin)

		startAmount := h.startAmount
		if raw := c.Query("start_amount"); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil || parsed.Sign() <= 0 {
				response.BadRequest(c, "start_amount must be a positive decimal")
				return
			}
			startAmount = parsed
		}

		var exchanges []string
		if raw := c.Query("exchanges"); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				if name = strings.TrimSpace(name); name != "" {
					exchanges = append(exchanges, name)
				}
			}
		}

		result, err := h.service.Scan(c.Request.Context(), exchanges, baseCoin, startAmount)
		response.Handle(c, result, err)
	}
}
