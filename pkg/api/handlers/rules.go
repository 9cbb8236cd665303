package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdwan-controller/pkg/flowrule"
)

// RuleHandler handles flow rule requests
type RuleHandler struct {
	rules *flowrule.Manager
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(rules *flowrule.Manager) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// ListRules handles GET /api/v1/rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	rules := h.rules.Rules()

	c.JSON(http.StatusOK, gin.H{
		"count":   len(rules),
		"pending": h.rules.PendingCount(),
		"rules":   rules,
	})
}
