package reports

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

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
	reportsGroup := rg.Group("/reports")
	{
		reportsGroup.GET("/transactions", authorize(auth.CapAudit), h.ExportTransactions)
	}
}

func (h *Handler) ExportTransactions(c *gin.Context) {
	req := &ExportRequest{Format: c.DefaultQuery("format", FormatCSV)}

	if t := c.Query("type"); t != "" {
		txnType := credits.TransactionType(t)
		req.Type = &txnType
	}
	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		req.CreatedAfter = &ts
	}
	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		req.CreatedBefore = &ts
	}

	filename := fmt.Sprintf("transactions-%s.%s", time.Now().Format("2006-01-02"), req.Format)
	switch req.Format {
	case FormatCSV:
		c.Header("Content-Type", "text/csv")
	case FormatXLSX:
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	if _, err := h.service.ExportTransactions(c.Request.Context(), req, c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}
