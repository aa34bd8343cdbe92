package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GatewayProvider identifies the external provider backing a payment method.
type GatewayProvider string

const (
	ProviderMonnify  GatewayProvider = "MONNIFY"
	ProviderStripe   GatewayProvider = "STRIPE"
	ProviderInternal GatewayProvider = "INTERNAL" // no external call (pay on delivery)
)

// PaymentMethod represents how the customer pays.
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "CARD"
	MethodTransfer       PaymentMethod = "TRANSFER"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodMonnify        PaymentMethod = "MONNIFY"
	MethodPayOnDelivery  PaymentMethod = "PAY_ON_DELIVERY"
	MethodWallet         PaymentMethod = "WALLET" // accepted on the wire, not supported
)

// MethodFallbackOrder is the fixed priority list walked when the requested
// method is disabled and the caller allows substitution.
var MethodFallbackOrder = []PaymentMethod{
	MethodPayOnDelivery,
	MethodTransfer,
	MethodVirtualAccount,
	MethodCard,
	MethodMonnify,
}

// TransactionStatus is the payment state machine.
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "PENDING"
	StatusCompleted       TransactionStatus = "COMPLETED"
	StatusConfirmed       TransactionStatus = "CONFIRMED"
	StatusFailed          TransactionStatus = "FAILED"
	StatusCancelled       TransactionStatus = "CANCELLED"
	StatusPendingManual   TransactionStatus = "PENDING_MANUAL"
	StatusPendingDelivery TransactionStatus = "PENDING_DELIVERY"
	StatusRefund          TransactionStatus = "REFUND"
)

// IsTerminal reports whether verification may no longer mutate the payment.
// Terminal payments are only touched by the explicit refund flow.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusConfirmed || s == StatusRefund
}

// IsCancellable reports whether CancelPayment accepts the current status.
func (s TransactionStatus) IsCancellable() bool {
	return s == StatusPending || s == StatusPendingDelivery || s == StatusPendingManual
}

// ProductType / ServiceType classify what is being paid for. A payment carries
// at most one of the two.
type ProductType string

const (
	ProductPhysical ProductType = "PHYSICAL"
	ProductDigital  ProductType = "DIGITAL"
	ProductGrocery  ProductType = "GROCERY"
)

type ServiceType string

const (
	ServiceLogistics   ServiceType = "LOGISTICS"
	ServiceCleaning    ServiceType = "CLEANING"
	ServiceElectricity ServiceType = "ELECTRICITY"
	ServiceWalletTopup ServiceType = "WALLET_TOPUP"
)

// ValidProductTypes and ValidServiceTypes are the request allow-lists.
var ValidProductTypes = map[ProductType]bool{
	ProductPhysical: true,
	ProductDigital:  true,
	ProductGrocery:  true,
}

var ValidServiceTypes = map[ServiceType]bool{
	ServiceLogistics:   true,
	ServiceCleaning:    true,
	ServiceElectricity: true,
	ServiceWalletTopup: true,
}

// JSONB custom type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// FeeBreakdown records every component of the committed amount.
type FeeBreakdown struct {
	RequestedAmount float64 `json:"requestedAmount"`
	VoucherDiscount float64 `json:"voucherDiscount"`
	AdjustedAmount  float64 `json:"adjustedAmount"`
	ServiceFee      float64 `json:"serviceFee"`
	TopupCharge     float64 `json:"topupCharge"`
	VAT             float64 `json:"vat"`
	TotalAmount     float64 `json:"totalAmount"`
}

// VoucherApplication ties a redeemed voucher to the payment details.
type VoucherApplication struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
}

// CardDetails holds card-charge artifacts returned by the gateway.
type CardDetails struct {
	ProviderRef    string `json:"providerRef,omitempty"`
	CardBrand      string `json:"cardBrand,omitempty"`
	CardLastFour   string `json:"cardLastFour,omitempty"`
	AuthorizedWith string `json:"authorizedWith,omitempty"` // OTP or 3DS
}

// Secure3DData carries the state needed to resume phase two of a card charge.
type Secure3DData struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	TokenID     string `json:"tokenId,omitempty"`
}

// BankTransferDetails holds the account the customer must pay into.
type BankTransferDetails struct {
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankName      string `json:"bankName"`
	BankCode      string `json:"bankCode,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

// VirtualAccountDetails holds the reserved account assigned to the payment.
type VirtualAccountDetails struct {
	AccountReference string `json:"accountReference"`
	AccountNumber    string `json:"accountNumber"`
	AccountName      string `json:"accountName"`
	BankName         string `json:"bankName"`
}

// PayOnDeliveryDetails holds the synthesized confirmation code.
type PayOnDeliveryDetails struct {
	ConfirmationCode string `json:"confirmationCode"`
}

// CheckoutDetails holds a hosted-checkout redirect (MONNIFY method or Stripe).
type CheckoutDetails struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionRef  string `json:"sessionRef,omitempty"`
}

// RefundInfo records the provider refund artifacts on the payment.
type RefundInfo struct {
	RefundReference string  `json:"refundReference"`
	RefundStatus    string  `json:"refundStatus"`
	RefundAmount    float64 `json:"refundAmount"`
	Reason          string  `json:"reason,omitempty"`
}

// DisbursementInfo records the settlement pushed for a bill payment.
type DisbursementInfo struct {
	Reference              string  `json:"reference"`
	Status                 string  `json:"status"`
	Amount                 float64 `json:"amount"`
	DestinationBankCode    string  `json:"destinationBankCode"`
	DestinationAccount     string  `json:"destinationAccount"`
	DestinationAccountName string  `json:"destinationAccountName,omitempty"`
}

// PaymentDetails is the typed envelope persisted with every payment. One
// sub-struct per payment method instead of an open-ended bag, so the shape is
// checked in code while still serializing to a single JSONB column.
type PaymentDetails struct {
	Fees             *FeeBreakdown          `json:"fees,omitempty"`
	Voucher          *VoucherApplication    `json:"voucher,omitempty"`
	Card             *CardDetails           `json:"card,omitempty"`
	Secure3D         *Secure3DData          `json:"secure3d,omitempty"`
	BankTransfer     *BankTransferDetails   `json:"bankTransfer,omitempty"`
	VirtualAccount   *VirtualAccountDetails `json:"virtualAccount,omitempty"`
	PayOnDelivery    *PayOnDeliveryDetails  `json:"payOnDelivery,omitempty"`
	Checkout         *CheckoutDetails       `json:"checkout,omitempty"`
	Refund           *RefundInfo            `json:"refund,omitempty"`
	Disbursement     *DisbursementInfo      `json:"disbursement,omitempty"`
	ElectricityToken string                 `json:"electricityToken,omitempty"`
}

func (d PaymentDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *PaymentDetails) Scan(value interface{}) error {
	if value == nil {
		*d = PaymentDetails{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// Payment is the central entity. TransactionRef is globally unique and
// immutable once assigned; it is the idempotency key for retried client
// requests and the correlation id for gateway callbacks.
type Payment struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TransactionRef  string            `gorm:"type:varchar(255);not null;uniqueIndex:idx_payments_txref" json:"transactionRef"`
	UserID          uuid.UUID         `gorm:"type:uuid;not null;index:idx_payments_user" json:"userId"`
	Amount          float64           `gorm:"type:decimal(12,2);not null" json:"amount"`
	RequestedAmount float64           `gorm:"type:decimal(12,2);not null" json:"requestedAmount"`
	PaymentMethod   PaymentMethod     `gorm:"type:varchar(50);not null" json:"paymentMethod"`
	Status          TransactionStatus `gorm:"type:varchar(50);not null;index:idx_payments_status" json:"status"`
	Provider        GatewayProvider   `gorm:"type:varchar(50);not null" json:"provider"`
	ProductType     ProductType       `gorm:"type:varchar(50)" json:"productType,omitempty"`
	ServiceType     ServiceType       `gorm:"type:varchar(50)" json:"serviceType,omitempty"`
	ItemID          *uuid.UUID        `gorm:"type:uuid" json:"itemId,omitempty"`
	MeterNumber     string            `gorm:"type:varchar(50)" json:"meterNumber,omitempty"`
	ProviderRef     string            `gorm:"type:varchar(255);index:idx_payments_provider_ref" json:"providerRef,omitempty"`
	Details         PaymentDetails    `gorm:"type:jsonb" json:"details"`
	FailureMessage  string            `gorm:"type:text" json:"failureMessage,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	CreatedAt       time.Time         `gorm:"default:CURRENT_TIMESTAMP;index:idx_payments_created" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payments"
}

// AuditAction names the state-changing actions recorded in the audit log.
type AuditAction string

const (
	AuditPaymentInitiated    AuditAction = "PAYMENT_INITIATED"
	AuditPaymentFailed       AuditAction = "PAYMENT_FAILED"
	AuditPaymentVerified     AuditAction = "PAYMENT_VERIFIED"
	AuditCardChargeInitiated AuditAction = "CARD_CHARGE_INITIATED"
	AuditCardAuthorized      AuditAction = "CARD_AUTHORIZED"
	AuditBillDisbursed       AuditAction = "BILL_DISBURSED"
	AuditBillDisburseFailed  AuditAction = "BILL_DISBURSEMENT_FAILED"
	AuditRefundInitiated     AuditAction = "REFUND_INITIATED"
	AuditWebhookUpdate       AuditAction = "WEBHOOK_UPDATE"
	AuditWebhookRejected     AuditAction = "WEBHOOK_REJECTED"
	AuditPaymentCancelled    AuditAction = "PAYMENT_CANCELLED"
	AuditFraudFlagged        AuditAction = "FRAUD_FLAGGED"
	AuditBVNVerified         AuditAction = "BVN_VERIFIED"
	AuditBVNMismatch         AuditAction = "BVN_MISMATCH"
)

// AuditLogEntry is append-only: written once, never updated or deleted. It is
// the system of record independent of the mutable payment row.
type AuditLogEntry struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Action     AuditAction `gorm:"type:varchar(100);not null;index:idx_audit_action" json:"action"`
	Actor      string      `gorm:"type:varchar(255);not null" json:"actor"`
	EntityType string      `gorm:"type:varchar(100);not null" json:"entityType"`
	EntityRef  string      `gorm:"type:varchar(255);not null;index:idx_audit_entity" json:"entityRef"`
	Detail     JSONB       `gorm:"type:jsonb" json:"detail,omitempty"`
	CreatedAt  time.Time   `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created" json:"createdAt"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}

// DiscountType represents how a voucher discounts the base amount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// VoucherContext restricts a voucher to product or service transactions.
type VoucherContext string

const (
	VoucherContextProduct VoucherContext = "PRODUCT"
	VoucherContextService VoucherContext = "SERVICE"
)

// Voucher carries a discount with applicability and usage constraints.
type Voucher struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code              string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_vouchers_code" json:"code"`
	DiscountType      DiscountType   `gorm:"type:varchar(20);not null" json:"discountType"`
	DiscountValue     float64        `gorm:"type:decimal(12,2);not null" json:"discountValue"`
	Context           VoucherContext `gorm:"type:varchar(20);not null" json:"context"`
	MaxUsageCount     *int           `json:"maxUsageCount,omitempty"`
	CurrentUsageCount int            `gorm:"default:0" json:"currentUsageCount"`
	IsActive          bool           `gorm:"default:true" json:"isActive"`
	ValidFrom         time.Time      `gorm:"not null" json:"validFrom"`
	ValidUntil        *time.Time     `json:"validUntil,omitempty"`
	CreatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Voucher) TableName() string {
	return "vouchers"
}

// DiscountFor computes the discount the voucher grants on a base amount.
func (v *Voucher) DiscountFor(baseAmount float64) float64 {
	if v.DiscountType == DiscountPercentage {
		return baseAmount * v.DiscountValue / 100
	}
	return v.DiscountValue
}

// VoucherUsage associates one redemption with one user and one payment.
// Created in the same transaction as the payment row so a single-use voucher
// is never spent without a corresponding payment.
type VoucherUsage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	VoucherID      uuid.UUID `gorm:"type:uuid;not null;index:idx_voucher_usages_voucher" json:"voucherId"`
	UserID         uuid.UUID `gorm:"type:uuid;not null" json:"userId"`
	PaymentID      uuid.UUID `gorm:"type:uuid;not null" json:"paymentId"`
	DiscountAmount float64   `gorm:"type:decimal(12,2);not null" json:"discountAmount"`
	CreatedAt      time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (VoucherUsage) TableName() string {
	return "voucher_usages"
}

// FraudAlert is created when a gateway-reported amount disagrees with the
// stored amount. The payment is parked at PENDING_MANUAL until an operator
// resolves the alert.
type FraudAlert struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentID      uuid.UUID `gorm:"type:uuid;not null;index:idx_fraud_alerts_payment" json:"paymentId"`
	TransactionRef string    `gorm:"type:varchar(255);not null" json:"transactionRef"`
	ExpectedAmount float64   `gorm:"type:decimal(12,2);not null" json:"expectedAmount"`
	ReportedAmount float64   `gorm:"type:decimal(12,2);not null" json:"reportedAmount"`
	Source         string    `gorm:"type:varchar(50);not null" json:"source"` // poll or webhook
	Resolved       bool      `gorm:"default:false" json:"resolved"`
	CreatedAt      time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (FraudAlert) TableName() string {
	return "fraud_alerts"
}

// PaymentConfig is the per-method toggle read before every payment attempt.
// Absence of a row is treated as disabled.
type PaymentConfig struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Method    PaymentMethod   `gorm:"type:varchar(50);not null;uniqueIndex:idx_payment_configs_method" json:"method"`
	Provider  GatewayProvider `gorm:"type:varchar(50);not null" json:"provider"`
	IsEnabled bool            `gorm:"default:false" json:"isEnabled"`
	CreatedAt time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (PaymentConfig) TableName() string {
	return "payment_configs"
}

// PaymentSettings holds the admin-configured rates used by the fee pipeline.
// Single row, seeded on boot.
type PaymentSettings struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ServiceCharge float64   `gorm:"type:decimal(12,2);default:0" json:"serviceCharge"`
	TopupCharge   float64   `gorm:"type:decimal(12,2);default:0" json:"topupCharge"`
	VATRate       float64   `gorm:"type:decimal(6,4);default:0.075" json:"vatRate"`
	UpdatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (PaymentSettings) TableName() string {
	return "payment_settings"
}

// User is the slice of the platform user the engine needs: identity for BVN
// name matching and the verified flag set on success.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FirstName   string    `gorm:"type:varchar(255);not null" json:"firstName"`
	LastName    string    `gorm:"type:varchar(255);not null" json:"lastName"`
	Email       string    `gorm:"type:varchar(255);not null" json:"email"`
	BVNVerified bool      `gorm:"default:false" json:"bvnVerified"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// LinkedBankAccount is the bank account linked to a user after BVN
// verification succeeds.
type LinkedBankAccount struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_linked_accounts_user" json:"userId"`
	BankCode      string    `gorm:"type:varchar(20);not null" json:"bankCode"`
	AccountNumber string    `gorm:"type:varchar(20);not null" json:"accountNumber"`
	AccountName   string    `gorm:"type:varchar(255);not null" json:"accountName"`
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (LinkedBankAccount) TableName() string {
	return "linked_bank_accounts"
}

// VendorWallet carries the two externally-reserved account references used
// for split settlement: one for item proceeds, one for delivery proceeds.
type VendorWallet struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	VendorID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vendor_wallets_vendor" json:"vendorId"`
	ItemAccountRef     string    `gorm:"type:varchar(255)" json:"itemAccountRef"`
	DeliveryAccountRef string    `gorm:"type:varchar(255)" json:"deliveryAccountRef"`
	CreatedAt          time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (VendorWallet) TableName() string {
	return "vendor_wallets"
}

// VendorItem maps an item to its owning vendor, enough for recipient
// resolution.
type VendorItem struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	VendorID    uuid.UUID `gorm:"type:uuid;not null;index:idx_vendor_items_vendor" json:"vendorId"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Price       float64   `gorm:"type:decimal(12,2)" json:"price"`
	DeliveryFee float64   `gorm:"type:decimal(12,2)" json:"deliveryFee"`
}

func (VendorItem) TableName() string {
	return "vendor_items"
}

// WebhookRetryTask is a durable queue entry for bounded webhook
// reconciliation retries. Attempt counts survive a process restart.
type WebhookRetryTask struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TransactionRef string    `gorm:"type:varchar(255);not null;index:idx_webhook_retries_txref" json:"transactionRef"`
	Attempts       int       `gorm:"default:0" json:"attempts"`
	MaxAttempts    int       `gorm:"default:3" json:"maxAttempts"`
	NextRunAt      time.Time `gorm:"not null;index:idx_webhook_retries_next_run" json:"nextRunAt"`
	LastError      string    `gorm:"type:text" json:"lastError,omitempty"`
	Done           bool      `gorm:"default:false;index:idx_webhook_retries_done" json:"done"`
	CreatedAt      time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (WebhookRetryTask) TableName() string {
	return "webhook_retry_tasks"
}
