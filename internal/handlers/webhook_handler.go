package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/services"
)

// WebhookHandler handles inbound provider webhooks
type WebhookHandler struct {
	verification *services.VerificationService
	log          *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(verification *services.VerificationService, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{verification: verification, log: log}
}

// HandleMonnifyWebhook handles POST /api/v1/webhooks/monnify. The raw body
// is read before any parsing because the signature covers the exact bytes.
func (h *WebhookHandler) HandleMonnifyWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unreadable body"})
		return
	}

	signature := c.GetHeader("monnify-signature")
	err = h.verification.HandleWebhook(c.Request.Context(), rawBody, signature)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, models.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid signature"})
	case errors.Is(err, models.ErrDuplicateWebhook):
		// Duplicate deliveries are acknowledged so the provider stops
		// re-sending.
		c.JSON(http.StatusOK, gin.H{"status": "already processed"})
	default:
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid payload", Message: validation.Error()})
			return
		}
		// A retry task is already queued; tell the provider we have it.
		h.log.WithError(err).Warn("webhook processing deferred to retry queue")
		c.JSON(http.StatusAccepted, gin.H{"status": "queued for retry"})
	}
}
