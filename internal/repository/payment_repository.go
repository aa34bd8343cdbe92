package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"payment-orchestrator/internal/models"
)

// PaymentRepository handles payment data operations
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTransaction runs fn inside a database transaction. The callback
// receives a repository bound to the transaction handle.
func (r *PaymentRepository) WithTransaction(ctx context.Context, fn func(txRepo PaymentRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx})
	})
}

// CreatePayment inserts a new payment record
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetPayment gets a payment by ID
func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByTransactionRef gets a payment by its transaction reference
func (r *PaymentRepository) GetPaymentByTransactionRef(ctx context.Context, transactionRef string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("transaction_ref = ?", transactionRef).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentDetails replaces the details document without touching the
// status column, so it cannot clobber a concurrent status transition.
func (r *PaymentRepository) UpdatePaymentDetails(ctx context.Context, transactionRef string, details models.PaymentDetails) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_ref = ?", transactionRef).
		Updates(map[string]interface{}{
			"details":    details,
			"updated_at": time.Now(),
		}).Error
}

// UpdatePaymentStatusIfCurrent transitions a payment only when its current
// status is one of the expected set. Two callers racing on the same
// transition see exactly one row changed between them.
func (r *PaymentRepository) UpdatePaymentStatusIfCurrent(ctx context.Context, transactionRef string, from []models.TransactionStatus, to models.TransactionStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_ref = ? AND status IN ?", transactionRef, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// UpdatePaymentStatusIfNotTerminal moves a payment to a new status only if it
// is not already in a terminal state. Returns the number of rows changed so
// callers can tell a no-op from a real transition.
func (r *PaymentRepository) UpdatePaymentStatusIfNotTerminal(ctx context.Context, transactionRef string, status models.TransactionStatus, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = status
	updates["updated_at"] = time.Now()
	if status == models.StatusCompleted || status == models.StatusConfirmed {
		updates["completed_at"] = time.Now()
	}

	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_ref = ? AND status NOT IN ?", transactionRef, []models.TransactionStatus{
			models.StatusCompleted, models.StatusConfirmed, models.StatusRefund,
		}).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListPayments returns a filtered, paginated page of a user's payments
func (r *PaymentRepository) ListPayments(ctx context.Context, filter *models.HistoryFilter) ([]models.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", filter.UserID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		q = q.Where("payment_method = ?", filter.Method)
	}
	if filter.DateFrom != nil {
		q = q.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("created_at <= ?", *filter.DateTo)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// GetVoucherByCode gets an active voucher by its code
func (r *PaymentRepository) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).Where("code = ? AND is_active = true", code).First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// IncrementVoucherUsage bumps a voucher's usage count, refusing once the
// maximum is reached. The conditional update is what enforces single-spend
// under concurrency: only one of two racing redemptions gets a row.
func (r *PaymentRepository) IncrementVoucherUsage(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND is_active = true AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)", voucherID).
		UpdateColumn("current_usage_count", gorm.Expr("current_usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateVoucherUsage records a voucher redemption against a payment
func (r *PaymentRepository) CreateVoucherUsage(ctx context.Context, usage *models.VoucherUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// AppendAuditLog writes an append-only audit entry
func (r *PaymentRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListAuditLog returns the audit trail for a transaction reference
func (r *PaymentRepository) ListAuditLog(ctx context.Context, transactionRef string) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.WithContext(ctx).Where("entity_ref = ?", transactionRef).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateFraudAlert records a flagged payment
func (r *PaymentRepository) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// GetPaymentConfig gets the stored configuration for a payment method
func (r *PaymentRepository) GetPaymentConfig(ctx context.Context, method models.PaymentMethod) (*models.PaymentConfig, error) {
	var config models.PaymentConfig
	err := r.db.WithContext(ctx).Where("method = ?", method).First(&config).Error
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// ListPaymentConfigs lists all stored method configurations
func (r *PaymentRepository) ListPaymentConfigs(ctx context.Context) ([]models.PaymentConfig, error) {
	var configs []models.PaymentConfig
	err := r.db.WithContext(ctx).Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// GetPaymentSettings gets the fee settings row
func (r *PaymentRepository) GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error) {
	var settings models.PaymentSettings
	err := r.db.WithContext(ctx).First(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetUser gets a user by ID
func (r *PaymentRepository) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser saves a user record
func (r *PaymentRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(user).Error
}

// UpsertLinkedBankAccount stores or replaces a user's verified bank account
func (r *PaymentRepository) UpsertLinkedBankAccount(ctx context.Context, account *models.LinkedBankAccount) error {
	var existing models.LinkedBankAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", account.UserID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(account).Error
	}
	if err != nil {
		return err
	}
	account.ID = existing.ID
	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(account).Error
}

// GetVendorWallet gets the settlement wallet for a vendor
func (r *PaymentRepository) GetVendorWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	var wallet models.VendorWallet
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetVendorItem gets a purchasable item with its owning vendor
func (r *PaymentRepository) GetVendorItem(ctx context.Context, itemID uuid.UUID) (*models.VendorItem, error) {
	var item models.VendorItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateWebhookRetryTask enqueues a webhook for re-processing
func (r *PaymentRepository) CreateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// ClaimDueWebhookRetries fetches unfinished retry tasks whose next run is due
func (r *PaymentRepository) ClaimDueWebhookRetries(ctx context.Context, limit int) ([]models.WebhookRetryTask, error) {
	var tasks []models.WebhookRetryTask
	err := r.db.WithContext(ctx).
		Where("done = false AND attempts < max_attempts AND next_run_at <= ?", time.Now()).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateWebhookRetryTask saves a retry task's progress
func (r *PaymentRepository) UpdateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error {
	task.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(task).Error
}
