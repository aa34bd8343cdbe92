package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
)

func newTestManagementService(repo *MockPaymentRepository, registry *gateway.Registry) *ManagementService {
	return NewManagementService(repo, registry, nil, testLogger())
}

func TestProcessRefundRejectsPendingPayment(t *testing.T) {
	payment := pendingPayment("PAY-pending", 1175)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-pending").Return(payment, nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	_, err := svc.ProcessRefund(context.Background(), "PAY-pending", &models.RefundRequest{})

	var ineligible *models.RefundIneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Equal(t, models.StatusPending, ineligible.Status)
}

func TestProcessRefundRejectsUnsupportedProvider(t *testing.T) {
	payment := pendingPayment("PAY-pod", 1175)
	payment.Status = models.StatusFailed
	payment.Provider = models.ProviderInternal

	gw := NewMockGateway(models.ProviderInternal, false)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodPayOnDelivery, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-pod").Return(payment, nil)

	svc := newTestManagementService(repo, registry)

	_, err := svc.ProcessRefund(context.Background(), "PAY-pod", &models.RefundRequest{})

	var ineligible *models.RefundIneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Contains(t, ineligible.Reason, "does not support refunds")
	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestProcessRefundFailedPaymentFullAmount(t *testing.T) {
	payment := pendingPayment("PAY-refund", 1175)
	payment.Status = models.StatusFailed
	payment.ProviderRef = "MNFY-9"

	gw := NewMockGateway(models.ProviderMonnify, true)
	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(r *gateway.RefundRequest) bool {
		return r.TransactionRef == "PAY-refund" && r.ProviderRef == "MNFY-9" && r.Amount == 1175
	})).Return(&gateway.RefundResult{RefundReference: "RF-1", Status: "IN_PROGRESS"}, nil)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-refund").Return(payment, nil)
	repo.On("UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-refund",
		[]models.TransactionStatus{models.StatusFailed, models.StatusCancelled}, models.StatusRefund).Return(int64(1), nil)
	repo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdatePaymentDetails", mock.Anything, "PAY-refund", mock.Anything).Return(nil)
	repo.On("AppendAuditLog", mock.Anything, mock.MatchedBy(func(e *models.AuditLogEntry) bool {
		return e.Action == models.AuditRefundInitiated
	})).Return(nil)

	svc := newTestManagementService(repo, registry)

	resp, err := svc.ProcessRefund(context.Background(), "PAY-refund", &models.RefundRequest{Reason: "order cancelled"})

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRefund, resp.Status)
	assert.Equal(t, "RF-1", resp.Details.Refund.RefundReference)
	assert.Equal(t, 1175.0, resp.Details.Refund.RefundAmount)
}

func TestProcessRefundPartialAmount(t *testing.T) {
	payment := pendingPayment("PAY-partial", 1175)
	payment.Status = models.StatusCancelled

	gw := NewMockGateway(models.ProviderMonnify, true)
	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(r *gateway.RefundRequest) bool {
		return r.Amount == 500
	})).Return(&gateway.RefundResult{RefundReference: "RF-2", Status: "COMPLETED"}, nil)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-partial").Return(payment, nil)
	repo.On("UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-partial",
		[]models.TransactionStatus{models.StatusFailed, models.StatusCancelled}, models.StatusRefund).Return(int64(1), nil)
	repo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdatePaymentDetails", mock.Anything, "PAY-partial", mock.Anything).Return(nil)
	repo.On("AppendAuditLog", mock.Anything, mock.Anything).Return(nil)

	svc := newTestManagementService(repo, registry)

	resp, err := svc.ProcessRefund(context.Background(), "PAY-partial", &models.RefundRequest{Amount: 500})

	assert.NoError(t, err)
	assert.Equal(t, 500.0, resp.Details.Refund.RefundAmount)
}

func TestProcessRefundClaimLostToConcurrentRefund(t *testing.T) {
	payment := pendingPayment("PAY-twice", 1175)
	payment.Status = models.StatusFailed
	already := pendingPayment("PAY-twice", 1175)
	already.Status = models.StatusRefund

	gw := NewMockGateway(models.ProviderMonnify, true)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-twice").Return(payment, nil).Once()
	// Another request claimed the transition first.
	repo.On("UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-twice",
		[]models.TransactionStatus{models.StatusFailed, models.StatusCancelled}, models.StatusRefund).Return(int64(0), nil)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-twice").Return(already, nil).Once()

	svc := newTestManagementService(repo, registry)

	_, err := svc.ProcessRefund(context.Background(), "PAY-twice", &models.RefundRequest{})

	var ineligible *models.RefundIneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Equal(t, models.StatusRefund, ineligible.Status)
	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestProcessRefundReleasesClaimOnProviderFailure(t *testing.T) {
	payment := pendingPayment("PAY-rel", 1175)
	payment.Status = models.StatusFailed
	providerErr := &models.GatewayError{Provider: models.ProviderMonnify, Code: "R99", Message: "refund rejected"}

	gw := NewMockGateway(models.ProviderMonnify, true)
	gw.On("CreateRefund", mock.Anything, mock.Anything).Return(nil, providerErr)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-rel").Return(payment, nil)
	repo.On("UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-rel",
		[]models.TransactionStatus{models.StatusFailed, models.StatusCancelled}, models.StatusRefund).Return(int64(1), nil)
	repo.On("UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-rel",
		[]models.TransactionStatus{models.StatusRefund}, models.StatusFailed).Return(int64(1), nil)

	svc := newTestManagementService(repo, registry)

	_, err := svc.ProcessRefund(context.Background(), "PAY-rel", &models.RefundRequest{})

	assert.ErrorIs(t, err, providerErr)
	repo.AssertCalled(t, "UpdatePaymentStatusIfCurrent", mock.Anything, "PAY-rel",
		[]models.TransactionStatus{models.StatusRefund}, models.StatusFailed)
	repo.AssertNotCalled(t, "UpdatePaymentDetails", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelPaymentRejectsCompleted(t *testing.T) {
	payment := pendingPayment("PAY-done", 1175)
	payment.Status = models.StatusCompleted

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-done").Return(payment, nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	_, err := svc.CancelPayment(context.Background(), "PAY-done")

	var ineligible *models.CancellationIneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Equal(t, models.StatusCompleted, ineligible.Status)
	repo.AssertNotCalled(t, "UpdatePaymentStatusIfNotTerminal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelPendingPayment(t *testing.T) {
	payment := pendingPayment("PAY-cancel", 1175)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-cancel").Return(payment, nil)
	repo.On("UpdatePaymentStatusIfNotTerminal", mock.Anything, "PAY-cancel", models.StatusCancelled, mock.Anything).Return(int64(1), nil)
	repo.On("AppendAuditLog", mock.Anything, mock.MatchedBy(func(e *models.AuditLogEntry) bool {
		return e.Action == models.AuditPaymentCancelled && e.Detail["previousStatus"] == "PENDING"
	})).Return(nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	resp, err := svc.CancelPayment(context.Background(), "PAY-cancel")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, resp.Status)
}

func TestCancelPaymentLosesRaceToTerminal(t *testing.T) {
	payment := pendingPayment("PAY-race", 1175)
	refreshed := pendingPayment("PAY-race", 1175)
	refreshed.Status = models.StatusCompleted

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-race").Return(payment, nil).Once()
	repo.On("UpdatePaymentStatusIfNotTerminal", mock.Anything, "PAY-race", models.StatusCancelled, mock.Anything).Return(int64(0), nil)
	repo.On("GetPaymentByTransactionRef", mock.Anything, "PAY-race").Return(refreshed, nil).Once()

	svc := newTestManagementService(repo, gateway.NewRegistry())

	_, err := svc.CancelPayment(context.Background(), "PAY-race")

	var ineligible *models.CancellationIneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Equal(t, models.StatusCompleted, ineligible.Status)
}

func TestVerifyBVNRejectsBadFormat(t *testing.T) {
	svc := newTestManagementService(new(MockPaymentRepository), gateway.NewRegistry())

	_, err := svc.VerifyBVN(context.Background(), &models.VerifyBVNRequest{
		UserID:        uuid.NewString(),
		BVN:           "123",
		AccountNumber: "0123456789",
		BankCode:      "058",
	})

	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "bvn", ve.Field)
}

func TestVerifyBVNNameMismatchNeverLinks(t *testing.T) {
	userID := uuid.New()

	gw := NewMockGateway(models.ProviderMonnify, true)
	gw.On("VerifyBVN", mock.Anything, mock.Anything).Return(&gateway.BVNResult{
		FirstName:   "Chinedu",
		LastName:    "Eze",
		AccountName: "Chinedu Eze",
	}, nil)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetUser", mock.Anything, userID).Return(testUser(userID), nil)
	repo.On("AppendAuditLog", mock.Anything, mock.MatchedBy(func(e *models.AuditLogEntry) bool {
		return e.Action == models.AuditBVNMismatch && e.EntityType == "user"
	})).Return(nil)

	svc := newTestManagementService(repo, registry)

	_, err := svc.VerifyBVN(context.Background(), &models.VerifyBVNRequest{
		UserID:        userID.String(),
		BVN:           "12345678901",
		AccountNumber: "0123456789",
		BankCode:      "058",
	})

	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
	repo.AssertNotCalled(t, "UpsertLinkedBankAccount", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything)
}

func TestVerifyBVNCaseInsensitiveMatchLinksAccount(t *testing.T) {
	userID := uuid.New()

	gw := NewMockGateway(models.ProviderMonnify, true)
	gw.On("VerifyBVN", mock.Anything, mock.Anything).Return(&gateway.BVNResult{
		FirstName:   "ADA",
		LastName:    "obi",
		AccountName: "Ada Obi",
	}, nil)
	registry := gateway.NewRegistry()
	registry.Register(models.MethodTransfer, gw, true)

	repo := new(MockPaymentRepository)
	repo.On("GetUser", mock.Anything, userID).Return(testUser(userID), nil)
	repo.On("UpsertLinkedBankAccount", mock.Anything, mock.MatchedBy(func(a *models.LinkedBankAccount) bool {
		return a.UserID == userID && a.AccountNumber == "0123456789" && a.AccountName == "Ada Obi"
	})).Return(nil)
	repo.On("UpdateUser", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.BVNVerified
	})).Return(nil)
	repo.On("AppendAuditLog", mock.Anything, mock.MatchedBy(func(e *models.AuditLogEntry) bool {
		return e.Action == models.AuditBVNVerified
	})).Return(nil)

	svc := newTestManagementService(repo, registry)

	account, err := svc.VerifyBVN(context.Background(), &models.VerifyBVNRequest{
		UserID:        userID.String(),
		BVN:           "12345678901",
		AccountNumber: "0123456789",
		BankCode:      "058",
	})

	assert.NoError(t, err)
	assert.Equal(t, "Ada Obi", account.AccountName)
}

func TestGetTransactionHistoryClampsPagination(t *testing.T) {
	repo := new(MockPaymentRepository)
	repo.On("ListPayments", mock.Anything, mock.MatchedBy(func(f *models.HistoryFilter) bool {
		return f.Page == 1 && f.Limit == 100
	})).Return([]models.Payment{}, int64(250), nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	page, err := svc.GetTransactionHistory(context.Background(), &models.HistoryFilter{
		UserID: uuid.New(),
		Page:   0,
		Limit:  500,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(250), page.Total)
	assert.Equal(t, int64(3), page.TotalPages)
}

func TestGetTransactionHistoryDefaultLimit(t *testing.T) {
	repo := new(MockPaymentRepository)
	repo.On("ListPayments", mock.Anything, mock.MatchedBy(func(f *models.HistoryFilter) bool {
		return f.Limit == 20
	})).Return([]models.Payment{}, int64(0), nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	page, err := svc.GetTransactionHistory(context.Background(), &models.HistoryFilter{UserID: uuid.New()})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), page.TotalPages)
}

func TestCheckPaymentMethodStatusNotConfigured(t *testing.T) {
	repo := new(MockPaymentRepository)
	repo.On("GetPaymentConfig", mock.Anything, models.MethodCard).Return(nil, gorm.ErrRecordNotFound)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	resp, err := svc.CheckPaymentMethodStatus(context.Background(), models.MethodCard)

	assert.NoError(t, err)
	assert.False(t, resp.IsEnabled)
	assert.Equal(t, "method is not configured", resp.Reason)
}

func TestCheckPaymentMethodStatusDisabledFlag(t *testing.T) {
	repo := new(MockPaymentRepository)
	repo.On("GetPaymentConfig", mock.Anything, models.MethodCard).Return(&models.PaymentConfig{
		Method:    models.MethodCard,
		Provider:  models.ProviderMonnify,
		IsEnabled: false,
	}, nil)

	svc := newTestManagementService(repo, gateway.NewRegistry())

	resp, err := svc.CheckPaymentMethodStatus(context.Background(), models.MethodCard)

	assert.NoError(t, err)
	assert.False(t, resp.IsEnabled)
	assert.Equal(t, "method is disabled", resp.Reason)
}

func TestCheckPaymentMethodStatusProviderMismatch(t *testing.T) {
	registry := gateway.NewRegistry()
	registry.Register(models.MethodCard, NewMockGateway(models.ProviderStripe, true), true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentConfig", mock.Anything, models.MethodCard).Return(&models.PaymentConfig{
		Method:    models.MethodCard,
		Provider:  models.ProviderMonnify,
		IsEnabled: true,
	}, nil)

	svc := newTestManagementService(repo, registry)

	resp, err := svc.CheckPaymentMethodStatus(context.Background(), models.MethodCard)

	assert.NoError(t, err)
	assert.False(t, resp.IsEnabled)
	assert.Equal(t, "configured provider does not match the serving adapter", resp.Reason)
}

func TestCheckPaymentMethodStatusHealthy(t *testing.T) {
	registry := gateway.NewRegistry()
	registry.Register(models.MethodCard, NewMockGateway(models.ProviderMonnify, true), true)

	repo := new(MockPaymentRepository)
	repo.On("GetPaymentConfig", mock.Anything, models.MethodCard).Return(&models.PaymentConfig{
		Method:    models.MethodCard,
		Provider:  models.ProviderMonnify,
		IsEnabled: true,
	}, nil)

	svc := newTestManagementService(repo, registry)

	resp, err := svc.CheckPaymentMethodStatus(context.Background(), models.MethodCard)

	assert.NoError(t, err)
	assert.True(t, resp.IsEnabled)
	assert.Empty(t, resp.Reason)
}
