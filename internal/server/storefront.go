package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerSallaSignature = "X-Salla-Signature"
	maxWebhookBodyBytes  = 1 << 20
)

func (s *Server) GetStorefrontConnection(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.storefrontSvc.GetConnectionStatus(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// HandleStorefrontWebhook accepts storefront lifecycle events. Unknown events are acknowledged and ignored.
func (s *Server) HandleStorefrontWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := strings.TrimSpace(c.GetHeader(headerSallaSignature))
	resp, err := s.storefrontSvc.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		s.log.Warn("storefront.webhook.rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
