package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleWebhook ingests a gateway callback. Duplicates and ignored event
// types still answer 200 so the gateway stops retrying; only signature and
// payload failures bubble up as errors.
func (s *Server) handleWebhook(c *gin.Context) {
	provider := c.Param("provider")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "unreadable body"))
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), provider, body, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"handled":   result.Handled,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
		"message":   result.Message,
	})
}
