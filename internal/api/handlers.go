package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"binance-setup-scanner/internal/bot"
)

// handleHealth returns server health status with every registered check
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	s.checksMu.RLock()
	checks := make(map[string]HealthCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	stats := make(map[string]interface{}, len(s.stats))
	for name, fn := range s.stats {
		stats[name] = fn()
	}
	s.checksMu.RUnlock()

	healthy := true
	components := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			healthy = false
			components[name] = "unhealthy"
			s.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			continue
		}
		components[name] = "healthy"
	}

	body := gin.H{
		"status":     "healthy",
		"components": components,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"ws_clients": s.hub.GetClientCount(),
	}
	if len(stats) > 0 {
		body["stats"] = stats
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// handleGetLatestScan returns the last finished run with its report text
func (s *Server) handleGetLatestScan(c *gin.Context) {
	run := s.scanAPI.LastRun()
	if run == nil {
		errorResponse(c, http.StatusNotFound, "no scan has completed yet")
		return
	}
	successResponse(c, http.StatusOK, run)
}

// handleGetScanStatus returns the runner state
func (s *Server) handleGetScanStatus(c *gin.Context) {
	successResponse(c, http.StatusOK, s.scanAPI.GetStatus())
}

// handleTriggerScan starts a run in the background
func (s *Server) handleTriggerScan(c *gin.Context) {
	if err := s.scanAPI.Trigger(s.baseCtx); err != nil {
		if errors.Is(err, bot.ErrScanInProgress) {
			errorResponse(c, http.StatusConflict, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Str("client_ip", c.ClientIP()).Msg("Scan triggered over HTTP")
	successResponse(c, http.StatusAccepted, gin.H{"message": "scan started"})
}
