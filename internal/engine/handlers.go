package engine

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/pkg/response"
)

// GinHandlers contains HTTP handlers for trade execution endpoints
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{engine: engine}
}

// ExecuteTradeHandler handles POST requests that commit to an opportunity.
// The response is the terminal attempt with its legs; an attempt that failed
// mid-flight is still a successful response carrying status "failed".
func (h *GinHandlers) ExecuteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var request struct {
			Opportunity types.Opportunity `json:"opportunity" binding:"required"`
			StartAmount decimal.Decimal   `json:"start_amount"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		startAmount := request.StartAmount
		if startAmount.Sign() <= 0 {
			startAmount = request.Opportunity.StartAmount
		}

		attempt, err := h.engine.Execute(c.Request.Context(), request.Opportunity, startAmount, clientID)
		if attempt == nil {
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			response.InternalError(c, "trade execution produced no attempt")
			return
		}
		response.Success(c, attempt)
	}
}

// GetAttemptHandler returns one of the caller's attempts with its legs.
func (h *GinHandlers) GetAttemptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		attemptID := c.Param("attempt_id")
		if attemptID == "" {
			response.BadRequest(c, "attempt_id is required")
			return
		}

		attempt, err := h.engine.GetAttempt(attemptID, clientID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if attempt == nil {
			response.NotFound(c, "Trade attempt not found")
			return
		}
		response.Success(c, attempt)
	}
}

// ListAttemptsHandler returns all of the caller's attempts, newest first.
func (h *GinHandlers) ListAttemptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		attempts, err := h.engine.GetClientAttempts(clientID)
		response.Handle(c, attempts, err)
	}
}
