package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/services"
)

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	payments     *services.PaymentService
	verification *services.VerificationService
	management   *services.ManagementService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, verification *services.VerificationService, management *services.ManagementService) *PaymentHandler {
	return &PaymentHandler{
		payments:     payments,
		verification: verification,
		management:   management,
	}
}

// InitiatePayment handles POST /api/v1/payments
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	response, err := h.payments.ProcessPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// InitiateBillPayment handles POST /api/v1/payments/bill
func (h *PaymentHandler) InitiateBillPayment(c *gin.Context) {
	var req models.InitiateBillPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	response, err := h.payments.ProcessBillPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// AuthorizePayment handles POST /api/v1/payments/authorize
func (h *PaymentHandler) AuthorizePayment(c *gin.Context) {
	var req models.AuthorizePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	response, err := h.payments.AuthorizeSecondFactor(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// VerifyPayment handles GET /api/v1/payments/verify/:transactionRef
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	transactionRef := c.Param("transactionRef")
	if transactionRef == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "transactionRef is required"})
		return
	}

	response, err := h.verification.VerifyPayment(c.Request.Context(), transactionRef)
	if err != nil {
		var mismatch *models.AmountMismatchError
		if errors.As(err, &mismatch) {
			// The payment state is still meaningful: it was parked for
			// manual review.
			c.JSON(http.StatusConflict, gin.H{"error": mismatch.Error(), "payment": response})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// RefundPayment handles POST /api/v1/payments/:transactionRef/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	transactionRef := c.Param("transactionRef")
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	response, err := h.management.ProcessRefund(c.Request.Context(), transactionRef, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// CancelPayment handles POST /api/v1/payments/:transactionRef/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	response, err := h.management.CancelPayment(c.Request.Context(), c.Param("transactionRef"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// TransactionHistory handles GET /api/v1/payments/history/:userId
func (h *PaymentHandler) TransactionHistory(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "userId must be a valid UUID"})
		return
	}

	filter := &models.HistoryFilter{
		UserID: userID,
		Status: models.TransactionStatus(c.Query("status")),
		Method: models.PaymentMethod(c.Query("method")),
	}
	filter.Page = intQuery(c, "page", 1)
	filter.Limit = intQuery(c, "limit", 20)
	if from := c.Query("dateFrom"); from != "" {
		if t, parseErr := time.Parse(time.RFC3339, from); parseErr == nil {
			filter.DateFrom = &t
		}
	}
	if to := c.Query("dateTo"); to != "" {
		if t, parseErr := time.Parse(time.RFC3339, to); parseErr == nil {
			filter.DateTo = &t
		}
	}

	page, err := h.management.GetTransactionHistory(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MethodStatus handles GET /api/v1/payments/methods/:method/status
func (h *PaymentHandler) MethodStatus(c *gin.Context) {
	method := models.PaymentMethod(c.Param("method"))
	response, err := h.management.CheckPaymentMethodStatus(c.Request.Context(), method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// VerifyBVN handles POST /api/v1/payments/verify-bvn
func (h *PaymentHandler) VerifyBVN(c *gin.Context) {
	var req models.VerifyBVNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	account, err := h.management.VerifyBVN(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v := 0
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return fallback
		}
		v = v*10 + int(ch-'0')
	}
	if v == 0 {
		return fallback
	}
	return v
}

// respondError translates domain errors into HTTP statuses. The orchestrator
// never absorbs errors, so this is the single place they become responses.
func respondError(c *gin.Context, err error) {
	var (
		validation   *models.ValidationError
		config       *models.ConfigurationError
		recipient    *models.RecipientResolutionError
		gatewayErr   *models.GatewayError
		refund       *models.RefundIneligibleError
		cancellation *models.CancellationIneligibleError
	)

	switch {
	case errors.Is(err, models.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Payment not found"})
	case errors.Is(err, models.ErrMethodDisabled), errors.Is(err, models.ErrMethodNotSupported):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Payment method unavailable", Message: err.Error()})
	case errors.Is(err, models.ErrVoucherInvalid), errors.Is(err, models.ErrVoucherInapplicable):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Voucher rejected", Message: err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Validation failed", Message: validation.Error()})
	case errors.As(err, &config):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Method misconfigured", Message: config.Error()})
	case errors.As(err, &recipient):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Recipient resolution failed", Message: recipient.Error()})
	case errors.As(err, &refund):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Refund not allowed", Message: refund.Error()})
	case errors.As(err, &cancellation):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Cancellation not allowed", Message: cancellation.Error()})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Gateway error", Message: gatewayErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal error", Message: err.Error()})
	}
}
