package models

import (
	"time"

	"github.com/google/uuid"
)

// InitiatePaymentRequest is the inbound payload for a standard payment.
type InitiatePaymentRequest struct {
	UserID         string        `json:"userId" binding:"required"`
	TransactionRef string        `json:"transactionRef"`
	Amount         float64       `json:"amount" binding:"required"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" binding:"required"`
	ProductType    ProductType   `json:"productType,omitempty"`
	ServiceType    ServiceType   `json:"serviceType,omitempty"`
	ItemID         *string       `json:"itemId,omitempty"`
	VoucherCode    string        `json:"voucherCode,omitempty"`
	CardToken      string        `json:"cardToken,omitempty"`
	AllowFallback  bool          `json:"allowFallback,omitempty"`
}

// InitiateBillPaymentRequest is the inbound payload for an electricity bill.
type InitiateBillPaymentRequest struct {
	UserID                   string        `json:"userId" binding:"required"`
	TransactionRef           string        `json:"transactionRef"`
	Amount                   float64       `json:"amount" binding:"required"`
	PaymentMethod            PaymentMethod `json:"paymentMethod" binding:"required"`
	MeterNumber              string        `json:"meterNumber" binding:"required"`
	DestinationBankCode      string        `json:"destinationBankCode" binding:"required"`
	DestinationAccountNumber string        `json:"destinationAccountNumber" binding:"required"`
	VoucherCode              string        `json:"voucherCode,omitempty"`
	CardToken                string        `json:"cardToken,omitempty"`
}

// AuthorizePaymentRequest completes phase two of a card charge (OTP / 3DS).
type AuthorizePaymentRequest struct {
	TransactionRef string `json:"transactionRef" binding:"required"`
	TokenID        string `json:"tokenId,omitempty"`
	OTP            string `json:"otp,omitempty"`
}

// PaymentResponse is the normalized result returned to the caller. Provider
// raw payloads never appear here.
type PaymentResponse struct {
	ID               string            `json:"id"`
	TransactionRef   string            `json:"transactionRef"`
	Status           TransactionStatus `json:"status"`
	Amount           float64           `json:"amount"`
	RequestedAmount  float64           `json:"requestedAmount"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	Details          PaymentDetails    `json:"details"`
	Message          string            `json:"message,omitempty"`
	ElectricityToken string            `json:"electricityToken,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// FromPayment builds the caller-facing view of a payment.
func FromPayment(p *Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:               p.ID.String(),
		TransactionRef:   p.TransactionRef,
		Status:           p.Status,
		Amount:           p.Amount,
		RequestedAmount:  p.RequestedAmount,
		PaymentMethod:    p.PaymentMethod,
		Details:          p.Details,
		ElectricityToken: p.Details.ElectricityToken,
		CreatedAt:        p.CreatedAt,
	}
}

// RefundRequest is the inbound payload for a refund.
type RefundRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
}

// WebhookPayload is the JSON body of an inbound provider webhook.
type WebhookPayload struct {
	TransactionReference string  `json:"transactionReference"`
	PaymentReference     string  `json:"paymentReference,omitempty"`
	PaymentStatus        string  `json:"paymentStatus"`
	Amount               float64 `json:"amount"`
	EventType            string  `json:"eventType,omitempty"`
	PaidOn               string  `json:"paidOn,omitempty"`
}

// VerifyBVNRequest links a bank account after identity verification.
type VerifyBVNRequest struct {
	UserID        string `json:"userId" binding:"required"`
	BVN           string `json:"bvn" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
	BankCode      string `json:"bankCode" binding:"required"`
}

// HistoryFilter narrows a transaction history query.
type HistoryFilter struct {
	UserID    uuid.UUID
	Page      int
	Limit     int
	Status    TransactionStatus
	Method    PaymentMethod
	DateFrom  *time.Time
	DateTo    *time.Time
}

// HistoryPage is one page of transaction history.
type HistoryPage struct {
	Payments   []Payment `json:"payments"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int64     `json:"total"`
	TotalPages int64     `json:"totalPages"`
}

// ErrorResponse is the uniform error body returned by the HTTP layer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MethodStatusResponse reports the effective availability of a method.
type MethodStatusResponse struct {
	Method    PaymentMethod   `json:"method"`
	Provider  GatewayProvider `json:"provider,omitempty"`
	IsEnabled bool            `json:"isEnabled"`
	Reason    string          `json:"reason,omitempty"`
}
