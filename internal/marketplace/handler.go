package marketplace

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/auth"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authorize func(auth.Capability) gin.HandlerFunc) {
	market := rg.Group("/marketplace")
	{
		market.GET("/credits/:id/quote", h.Quote)
		market.POST("/credits/:id/purchase", authorize(auth.CapPurchase), h.Purchase)
		market.POST("/credits/:id/retire", authorize(auth.CapRetire), h.Retire)
		market.GET("/stats", h.Stats)
	}
}

func (h *Handler) Quote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (h *Handler) Purchase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	buyerID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	result, err := h.service.Purchase(c.Request.Context(), id, buyerID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Retire(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	callerID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Retire(c.Request.Context(), id, callerID, req.Reason)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// renderError maps the domain's typed errors onto HTTP statuses. Every
// branch matches on the error value or type, never on message text.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, credits.ErrCreditNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credit not found"})
	case errors.Is(err, ErrNoLongerAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": "credit no longer available"})
	case errors.Is(err, credits.ErrSelfPurchase):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, credits.ErrAlreadyRetired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, credits.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case credits.IsInvalidState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
