package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

// MockPaymentRepository is a mock implementation of PaymentRepositoryInterface
type MockPaymentRepository struct {
	mock.Mock
}

var _ repository.PaymentRepositoryInterface = (*MockPaymentRepository)(nil)

func (m *MockPaymentRepository) WithTransaction(ctx context.Context, fn func(repository.PaymentRepositoryInterface) error) error {
	args := m.Called(ctx, mock.Anything)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(m)
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetPaymentByTransactionRef(ctx context.Context, transactionRef string) (*models.Payment, error) {
	args := m.Called(ctx, transactionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdatePaymentDetails(ctx context.Context, transactionRef string, details models.PaymentDetails) error {
	args := m.Called(ctx, transactionRef, details)
	return args.Error(0)
}

func (m *MockPaymentRepository) UpdatePaymentStatusIfNotTerminal(ctx context.Context, transactionRef string, status models.TransactionStatus, updates map[string]interface{}) (int64, error) {
	args := m.Called(ctx, transactionRef, status, updates)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) UpdatePaymentStatusIfCurrent(ctx context.Context, transactionRef string, from []models.TransactionStatus, to models.TransactionStatus) (int64, error) {
	args := m.Called(ctx, transactionRef, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) ListPayments(ctx context.Context, filter *models.HistoryFilter) ([]models.Payment, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentRepository) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Voucher), args.Error(1)
}

func (m *MockPaymentRepository) IncrementVoucherUsage(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	args := m.Called(ctx, voucherID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) CreateVoucherUsage(ctx context.Context, usage *models.VoucherUsage) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

func (m *MockPaymentRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPaymentRepository) ListAuditLog(ctx context.Context, transactionRef string) ([]models.AuditLogEntry, error) {
	args := m.Called(ctx, transactionRef)
	return args.Get(0).([]models.AuditLogEntry), args.Error(1)
}

func (m *MockPaymentRepository) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPaymentConfig(ctx context.Context, method models.PaymentMethod) (*models.PaymentConfig, error) {
	args := m.Called(ctx, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentConfig), args.Error(1)
}

func (m *MockPaymentRepository) ListPaymentConfigs(ctx context.Context) ([]models.PaymentConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.PaymentConfig), args.Error(1)
}

func (m *MockPaymentRepository) GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSettings), args.Error(1)
}

func (m *MockPaymentRepository) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockPaymentRepository) UpdateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockPaymentRepository) UpsertLinkedBankAccount(ctx context.Context, account *models.LinkedBankAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetVendorWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorWallet), args.Error(1)
}

func (m *MockPaymentRepository) GetVendorItem(ctx context.Context, itemID uuid.UUID) (*models.VendorItem, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorItem), args.Error(1)
}

func (m *MockPaymentRepository) CreateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockPaymentRepository) ClaimDueWebhookRetries(ctx context.Context, limit int) ([]models.WebhookRetryTask, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.WebhookRetryTask), args.Error(1)
}

func (m *MockPaymentRepository) UpdateWebhookRetryTask(ctx context.Context, task *models.WebhookRetryTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// MockGateway is a mock implementation of the PaymentGateway interface
type MockGateway struct {
	mock.Mock
	provider models.GatewayProvider
	refunds  bool
}

var _ gateway.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway(provider models.GatewayProvider, supportsRefunds bool) *MockGateway {
	return &MockGateway{provider: provider, refunds: supportsRefunds}
}

func (g *MockGateway) Provider() models.GatewayProvider { return g.provider }

func (g *MockGateway) SupportsRefunds() bool { return g.refunds }

func (g *MockGateway) InitiateCharge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	args := g.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResult), args.Error(1)
}

func (g *MockGateway) AuthorizeSecondFactor(ctx context.Context, req *gateway.AuthorizeRequest) (*gateway.ChargeResult, error) {
	args := g.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResult), args.Error(1)
}

func (g *MockGateway) QueryStatus(ctx context.Context, transactionRef string) (*gateway.StatusResult, error) {
	args := g.Called(ctx, transactionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}

func (g *MockGateway) Disburse(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error) {
	args := g.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.DisbursementResult), args.Error(1)
}

func (g *MockGateway) GetReservedAccount(ctx context.Context, accountRef string) (*gateway.AccountDetails, error) {
	args := g.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.AccountDetails), args.Error(1)
}

func (g *MockGateway) GetMerchantAccount(ctx context.Context) (*gateway.AccountDetails, error) {
	args := g.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.AccountDetails), args.Error(1)
}

func (g *MockGateway) CreateRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	args := g.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

func (g *MockGateway) VerifyBVN(ctx context.Context, req *gateway.BVNRequest) (*gateway.BVNResult, error) {
	args := g.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.BVNResult), args.Error(1)
}
