package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/lock"
	"github.com/yourorg/exchange-aggregator/internal/model"
	"github.com/yourorg/exchange-aggregator/internal/repository"
	"github.com/yourorg/exchange-aggregator/internal/service"
)

// ExchangerHandler handles the internal exchanger administration API
type ExchangerHandler struct {
	exchangerService *service.ExchangerService
	logger           *zap.Logger
}

// NewExchangerHandler creates a new exchanger handler
func NewExchangerHandler(exchangerService *service.ExchangerService, logger *zap.Logger) *ExchangerHandler {
	return &ExchangerHandler{
		exchangerService: exchangerService,
		logger:           logger,
	}
}

// List handles listing all exchangers
// GET /api/v1/exchangers
func (h *ExchangerHandler) List(c *gin.Context) {
	exchangers, err := h.exchangerService.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list exchangers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list exchangers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(exchangers), "exchangers": exchangers})
}

// Get handles fetching one exchanger
// GET /api/v1/exchangers/:id
func (h *ExchangerHandler) Get(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}
	exchanger, err := h.exchangerService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to get exchanger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get exchanger"})
		return
	}
	c.JSON(http.StatusOK, exchanger)
}

// ListOffers handles inspecting an exchanger's materialized offers
// GET /api/v1/exchangers/:id/offers
func (h *ExchangerHandler) ListOffers(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}
	offers, err := h.exchangerService.Offers(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to list offers", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list offers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(offers), "offers": offers})
}

// ListBlackList handles inspecting an exchanger's black-list
// GET /api/v1/exchangers/:id/blacklist
func (h *ExchangerHandler) ListBlackList(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}
	elements, err := h.exchangerService.BlackList(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to list black-list", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list black-list"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(elements), "elements": elements})
}

// TriggerSync handles a manual full sync request
// POST /api/v1/exchangers/:id/sync
func (h *ExchangerHandler) TriggerSync(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}

	err := h.exchangerService.TriggerSync(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			c.JSON(http.StatusConflict, gin.H{"error": "Sync already in progress"})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to sync exchanger", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Sync completed"})
}

// TriggerRescan handles a manual black-list rescan request
// POST /api/v1/exchangers/:id/blacklist-rescan
func (h *ExchangerHandler) TriggerRescan(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}

	err := h.exchangerService.TriggerRescan(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			c.JSON(http.StatusConflict, gin.H{"error": "Sync already in progress"})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to rescan black-list", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rescan failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rescan completed"})
}

// UpdatePeriods handles period configuration changes
// PUT /api/v1/exchangers/:id/periods
func (h *ExchangerHandler) UpdatePeriods(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}

	var request model.ExchangerPeriods
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.exchangerService.UpdatePeriods(c.Request.Context(), id, request); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to update periods", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update periods"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Periods updated"})
}

// SetActive handles enabling or disabling an exchanger
// PUT /api/v1/exchangers/:id/active
func (h *ExchangerHandler) SetActive(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}

	var request struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.exchangerService.SetActive(c.Request.Context(), id, *request.Active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to set exchanger activity", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update exchanger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exchanger updated"})
}

// RefreshInfo handles recomputing the exchanger's display statistics
// POST /api/v1/exchangers/:id/info-refresh
func (h *ExchangerHandler) RefreshInfo(c *gin.Context) {
	id, ok := h.exchangerID(c)
	if !ok {
		return
	}

	if err := h.exchangerService.RefreshInfo(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exchanger not found"})
			return
		}
		h.logger.Error("failed to refresh exchanger info", zap.Error(err), zap.Int("exchanger_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh info"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Info refreshed"})
}

func (h *ExchangerHandler) exchangerID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exchanger ID"})
		return 0, false
	}
	return id, true
}
