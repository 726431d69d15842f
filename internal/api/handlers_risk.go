package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradevera/internal/auth"
	"tradevera/internal/risk"
	"tradevera/internal/validation"
)

type settingsResponse struct {
	Settings *risk.Settings `json:"settings"`
	Status   risk.Status    `json:"status"`
}

func (s *Server) settingsResponse(settings *risk.Settings) settingsResponse {
	return settingsResponse{Settings: settings, Status: s.risk.Status(settings)}
}

// handleGetRiskSettings returns the caller's guardrails and lockout status
func (s *Server) handleGetRiskSettings(c *gin.Context) {
	settings, err := s.risk.Get(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.settingsResponse(settings))
}

// handleUpdateRiskSettings applies a partial patch
func (s *Server) handleUpdateRiskSettings(c *gin.Context) {
	var patch risk.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, validation.FromBindError(err))
		return
	}

	settings, err := s.risk.Update(c.Request.Context(), auth.GetUserID(c), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.settingsResponse(settings))
}

// handleUnlockRiskSettings clears an active lockout
func (s *Server) handleUnlockRiskSettings(c *gin.Context) {
	settings, err := s.risk.ClearLockout(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.settingsResponse(settings))
}

// handleListRiskEvents returns the lockout audit trail, as deep as the caller's plan allows
func (s *Server) handleListRiskEvents(c *gin.Context) {
	history := s.plans.GetTierLimits(auth.GetUserPlan(c)).RiskEventHistory
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	if limit > history {
		limit = history
	}

	evs, err := s.risk.Events(c.Request.Context(), auth.GetUserID(c), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if evs == nil {
		evs = []risk.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "limit": limit})
}
