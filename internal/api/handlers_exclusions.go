package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"binance-setup-scanner/internal/database"
)

var _ ExclusionStore = (*database.DB)(nil)

type exclusionRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Reason string `json:"reason"`
}

// exclusionStore aborts with 503 when no store is configured
func (s *Server) exclusionStore(c *gin.Context) (ExclusionStore, bool) {
	if s.exclusions == nil {
		errorResponse(c, http.StatusServiceUnavailable, "exclusion store is not configured")
		return nil, false
	}
	return s.exclusions, true
}

// handleListExclusions returns every stored exclusion
func (s *Server) handleListExclusions(c *gin.Context) {
	store, ok := s.exclusionStore(c)
	if !ok {
		return
	}

	rows, err := store.GetExclusions(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list exclusions")
		errorResponse(c, http.StatusInternalServerError, "failed to list exclusions")
		return
	}
	if rows == nil {
		rows = []database.SymbolExclusion{}
	}
	successResponse(c, http.StatusOK, rows)
}

// handleUpsertExclusion adds a symbol to the exclusion list; it applies from the next run
func (s *Server) handleUpsertExclusion(c *gin.Context) {
	store, ok := s.exclusionStore(c)
	if !ok {
		return
	}

	var req exclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	symbol := database.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	if err := store.UpsertExclusion(c.Request.Context(), symbol, req.Reason); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to store exclusion")
		errorResponse(c, http.StatusInternalServerError, "failed to store exclusion")
		return
	}

	s.logger.Info().Str("symbol", symbol).Str("reason", req.Reason).Msg("Symbol excluded")
	successResponse(c, http.StatusCreated, gin.H{"symbol": symbol, "reason": req.Reason})
}

// handleDeleteExclusion removes a symbol from the exclusion list
func (s *Server) handleDeleteExclusion(c *gin.Context) {
	store, ok := s.exclusionStore(c)
	if !ok {
		return
	}

	symbol := database.NormalizeSymbol(c.Param("symbol"))
	deleted, err := store.DeleteExclusion(c.Request.Context(), symbol)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to delete exclusion")
		errorResponse(c, http.StatusInternalServerError, "failed to delete exclusion")
		return
	}
	if !deleted {
		errorResponse(c, http.StatusNotFound, "symbol is not excluded: "+symbol)
		return
	}

	s.logger.Info().Str("symbol", symbol).Msg("Symbol exclusion removed")
	successResponse(c, http.StatusOK, gin.H{"symbol": symbol})
}
