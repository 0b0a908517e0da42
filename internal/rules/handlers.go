package rules

import (
	"github.com/gin-gonic/gin"
	"github.com/triarb/triarb-api/pkg/response"
)

// GinHandlers contains HTTP handlers for rule catalog administration
type GinHandlers struct {
	catalog *Catalog
}

func NewGinHandlers(catalog *Catalog) *GinHandlers {
	return &GinHandlers{catalog: catalog}
}

// ReplaceRulesHandler handles PUT requests that swap the full rule set for
// one exchange. Intended for the internal route group only.
func (h *GinHandlers) ReplaceRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange := c.Param("exchange")
		if exchange == "" {
			response.BadRequest(c, "exchange is required")
			return
		}

		var ruleSet []PairRule
		if err := c.ShouldBindJSON(&ruleSet); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.catalog.Replace(exchange, ruleSet); err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, gin.H{"exchange": exchange, "rules": len(ruleSet)})
	}
}

// GetRuleHandler returns the effective rule for one pair, including the
// conservative default for unknown pairs.
func (h *GinHandlers) GetRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchange := c.Param("exchange")
		pair := c.Param("pair")
		if exchange == "" || pair == "" {
			response.BadRequest(c, "exchange and pair are required")
			return
		}
		response.Success(c, h.catalog.Get(exchange, pair))
	}
}
