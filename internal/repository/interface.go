package repository

import (
	"context"

	"github.com/google/uuid"

	"payment-orchestrator/internal/models"
)

// PaymentRepositoryInterface defines the persistence contract the services
// depend on.
type PaymentRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(txRepo PaymentRepositoryInterface) error) error

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	GetPaymentByTransactionRef(ctx context.Context, transactionRef string) (*models.Payment, error)
	UpdatePaymentDetails(ctx context.Context, transactionRef string, details models.PaymentDetails) error
	UpdatePaymentStatusIfNotTerminal(ctx context.Context, transactionRef string, status models.TransactionStatus, updates map[string]interface{}) (int64, error)
	UpdatePaymentStatusIfCurrent(ctx context.Context, transactionRef string, from []models.TransactionStatus, to models.TransactionStatus) (int64, error)
	ListPayments(ctx context.Context, filter *models.HistoryFilter) ([]models.Payment, int64, error)

	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	IncrementVoucherUsage(ctx context.Context, voucherID uuid.UUID) (bool, error)
	CreateVoucherUsage(ctx context.Context, usage *models.VoucherUsage) error

	AppendAuditLog(ctx context.Context, entry *models.AuditLogEntry) error
	ListAuditLog(ctx context.Context, transactionRef string) ([]models.AuditLogEntry, error)
	CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error

	GetPaymentConfig(ctx context.Context, method models.PaymentMethod) (*models.PaymentConfig, error)
	ListPaymentConfigs(ctx context.Context) ([]models.PaymentConfig, error)
	GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error)

	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	UpsertLinkedBankAccount(ctx context.Context, account *models.LinkedBankAccount) error

	GetVendorWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	GetVendorItem(ctx context.Context, itemID uuid.UUID) (*models.VendorItem, error)

	CreateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error
	ClaimDueWebhookRetries(ctx context.Context, limit int) ([]models.WebhookRetryTask, error)
	UpdateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error
}

// Ensure PaymentRepository implements the interface
var _ PaymentRepositoryInterface = (*PaymentRepository)(nil)
