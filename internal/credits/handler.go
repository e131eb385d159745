package credits

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authorize func(auth.Capability) gin.HandlerFunc) {
	creditsGroup := rg.Group("/credits")
	{
		creditsGroup.POST("", authorize(auth.CapIssue), h.Issue)
		creditsGroup.GET("", h.List)
		creditsGroup.GET("/portfolio", h.Portfolio)
		creditsGroup.GET("/:id", h.Get)
		creditsGroup.GET("/:id/history", h.History)
	}
}

func (h *Handler) Issue(c *gin.Context) {
	producerID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	credit, err := h.service.Issue(c.Request.Context(), producerID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, credit)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	credit, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCreditNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, credit)
}

func (h *Handler) List(c *gin.Context) {
	page, pageSize := pagination(c)

	creditList, total, err := h.service.ListMarketplace(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credits": creditList,
		"total":   total,
		"page":    page,
	})
}

func (h *Handler) Portfolio(c *gin.Context) {
	ownerID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	page, pageSize := pagination(c)
	creditList, total, err := h.service.ListPortfolio(c.Request.Context(), ownerID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credits": creditList,
		"total":   total,
		"page":    page,
	})
}

func (h *Handler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	txns, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCreditNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
