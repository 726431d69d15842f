package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradevera/internal/auth"
	"tradevera/internal/trades"
	"tradevera/internal/validation"
)

// handleCreateTrade admits a new trade through the guardrail gate
func (s *Server) handleCreateTrade(c *gin.Context) {
	var req trades.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, validation.FromBindError(err))
		return
	}

	principal := trades.Principal{
		UserID: auth.GetUserID(c),
		Plan:   auth.GetUserPlan(c),
	}

	result, err := s.gate.CreateTrade(c.Request.Context(), principal, req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// handleListTrades returns the caller's trades, newest first
func (s *Server) handleListTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, offset = trades.PageBounds(limit, offset)

	list, err := s.gate.ListTrades(c.Request.Context(), auth.GetUserID(c), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []trades.Trade{}
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": list,
		"count":  len(list),
		"limit":  limit,
		"offset": offset,
	})
}
