package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/service"
)

// DirectionHandler handles direction query HTTP requests
type DirectionHandler struct {
	directionService *service.DirectionService
	logger           *zap.Logger
}

// NewDirectionHandler creates a new direction handler
func NewDirectionHandler(directionService *service.DirectionService, logger *zap.Logger) *DirectionHandler {
	return &DirectionHandler{
		directionService: directionService,
		logger:           logger,
	}
}

// Query handles the public directions query
// GET /api/v1/directions?from=BTC&to=CASHRUB&city=MSK
func (h *DirectionHandler) Query(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}

	var cityCode *string
	if city := c.Query("city"); city != "" {
		cityCode = &city
	}

	offers, err := h.directionService.Query(c.Request.Context(), from, to, cityCode)
	if err != nil {
		if errors.Is(err, service.ErrNoOffersFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No offers found for this direction"})
			return
		}
		h.logger.Error("failed to query direction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query direction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":   from,
		"to":     to,
		"count":  len(offers),
		"offers": offers,
	})
}
