package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment-orchestrator/internal/events"
	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

var (
	bvnPattern     = regexp.MustCompile(`^\d{11}$`)
	accountPattern = regexp.MustCompile(`^\d{10}$`)
)

// ManagementService covers the operational surface around a payment's life:
// refunds, cancellation, BVN-backed account linking, history, and method
// availability.
type ManagementService struct {
	repo      repository.PaymentRepositoryInterface
	registry  *gateway.Registry
	publisher *events.Publisher
	log       *logrus.Logger
}

// NewManagementService creates a new management service
func NewManagementService(repo repository.PaymentRepositoryInterface, registry *gateway.Registry, publisher *events.Publisher, log *logrus.Logger) *ManagementService {
	return &ManagementService{repo: repo, registry: registry, publisher: publisher, log: log}
}

// ProcessRefund refunds a FAILED or CANCELLED payment through its provider.
// The transition to REFUND is claimed with a conditional update before the
// provider is called, so two concurrent refund requests can never both reach
// the provider. A provider failure releases the claim.
func (s *ManagementService) ProcessRefund(ctx context.Context, transactionRef string, req *models.RefundRequest) (*models.PaymentResponse, error) {
	payment, err := s.repo.GetPaymentByTransactionRef(ctx, transactionRef)
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	if payment.Status != models.StatusFailed && payment.Status != models.StatusCancelled {
		return nil, &models.RefundIneligibleError{TransactionRef: transactionRef, Status: payment.Status}
	}

	gw, ok := s.registry.Primary(payment.Provider)
	if !ok || !gw.SupportsRefunds() {
		return nil, &models.RefundIneligibleError{
			TransactionRef: transactionRef,
			Status:         payment.Status,
			Reason:         "provider " + string(payment.Provider) + " does not support refunds",
		}
	}

	amount := req.Amount
	if amount <= 0 {
		amount = payment.Amount
	}

	previous := payment.Status
	rows, err := s.repo.UpdatePaymentStatusIfCurrent(ctx, transactionRef,
		[]models.TransactionStatus{models.StatusFailed, models.StatusCancelled}, models.StatusRefund)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		refreshed, refErr := s.repo.GetPaymentByTransactionRef(ctx, transactionRef)
		if refErr != nil {
			return nil, refErr
		}
		return nil, &models.RefundIneligibleError{
			TransactionRef: transactionRef,
			Status:         refreshed.Status,
			Reason:         "refund already in progress or status changed",
		}
	}
	payment.Status = models.StatusRefund

	result, err := gw.CreateRefund(ctx, &gateway.RefundRequest{
		TransactionRef: transactionRef,
		ProviderRef:    payment.ProviderRef,
		Amount:         amount,
		Reason:         req.Reason,
	})
	if err != nil {
		if _, relErr := s.repo.UpdatePaymentStatusIfCurrent(ctx, transactionRef,
			[]models.TransactionStatus{models.StatusRefund}, previous); relErr != nil {
			s.log.WithField("transactionRef", transactionRef).WithError(relErr).Error("failed to release refund claim")
		}
		return nil, err
	}

	payment.Details.Refund = &models.RefundInfo{
		RefundReference: result.RefundReference,
		RefundStatus:    result.Status,
		RefundAmount:    amount,
		Reason:          req.Reason,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repository.PaymentRepositoryInterface) error {
		if updateErr := txRepo.UpdatePaymentDetails(ctx, transactionRef, payment.Details); updateErr != nil {
			return updateErr
		}
		return txRepo.AppendAuditLog(ctx, &models.AuditLogEntry{
			Action:     models.AuditRefundInitiated,
			Actor:      payment.UserID.String(),
			EntityType: "payment",
			EntityRef:  transactionRef,
			Detail:     models.JSONB{"refundReference": result.RefundReference, "amount": amount},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(events.SubjectPaymentRefunded, payment)
	}

	return models.FromPayment(payment), nil
}

// CancelPayment moves a still-pending payment to CANCELLED. Any other
// current status is rejected with the blocking status named.
func (s *ManagementService) CancelPayment(ctx context.Context, transactionRef string) (*models.PaymentResponse, error) {
	payment, err := s.repo.GetPaymentByTransactionRef(ctx, transactionRef)
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	if !payment.Status.IsCancellable() {
		return nil, &models.CancellationIneligibleError{TransactionRef: transactionRef, Status: payment.Status}
	}

	previous := payment.Status
	rows, err := s.repo.UpdatePaymentStatusIfNotTerminal(ctx, transactionRef, models.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost the race to a concurrent terminal transition.
		refreshed, refErr := s.repo.GetPaymentByTransactionRef(ctx, transactionRef)
		if refErr != nil {
			return nil, refErr
		}
		return nil, &models.CancellationIneligibleError{TransactionRef: transactionRef, Status: refreshed.Status}
	}
	payment.Status = models.StatusCancelled

	s.appendAudit(ctx, payment, models.AuditPaymentCancelled, models.JSONB{"previousStatus": string(previous)})
	return models.FromPayment(payment), nil
}

// VerifyBVN checks the caller's identity against the provider's BVN record
// and, on a case-insensitive name match, links the bank account and marks
// the user verified. A mismatch never links the account and is audited.
func (s *ManagementService) VerifyBVN(ctx context.Context, req *models.VerifyBVNRequest) (*models.LinkedBankAccount, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, models.NewValidationError("userId", "must be a valid UUID")
	}
	if !bvnPattern.MatchString(req.BVN) {
		return nil, models.NewValidationError("bvn", "must be 11 digits")
	}
	if !accountPattern.MatchString(req.AccountNumber) {
		return nil, models.NewValidationError("accountNumber", "must be 10 digits")
	}
	if req.BankCode == "" {
		return nil, models.NewValidationError("bankCode", "is required")
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err == gorm.ErrRecordNotFound {
		return nil, models.NewValidationError("userId", "user does not exist")
	}
	if err != nil {
		return nil, err
	}

	gw, ok := s.registry.Primary(models.ProviderMonnify)
	if !ok {
		return nil, &models.ConfigurationError{Message: "primary provider is not configured"}
	}

	result, err := gw.VerifyBVN(ctx, &gateway.BVNRequest{
		BVN:           req.BVN,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
	})
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(result.FirstName, user.FirstName) || !strings.EqualFold(result.LastName, user.LastName) {
		s.appendUserAudit(ctx, userID, models.AuditBVNMismatch, models.JSONB{
			"accountNumber": maskAccountNumber(req.AccountNumber),
		})
		return nil, models.NewValidationError("bvn", "identity does not match the account holder")
	}

	account := &models.LinkedBankAccount{
		UserID:        userID,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   result.AccountName,
	}
	if err := s.repo.UpsertLinkedBankAccount(ctx, account); err != nil {
		return nil, err
	}

	user.BVNVerified = true
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.appendUserAudit(ctx, userID, models.AuditBVNVerified, models.JSONB{
		"accountNumber": maskAccountNumber(req.AccountNumber),
		"bankCode":      req.BankCode,
	})
	return account, nil
}

// GetTransactionHistory is a pure paginated read. Page floors at one and
// limit is clamped to [1, 100].
func (s *ManagementService) GetTransactionHistory(ctx context.Context, filter *models.HistoryFilter) (*models.HistoryPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	payments, total, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(filter.Limit)
	if total%int64(filter.Limit) != 0 {
		totalPages++
	}

	return &models.HistoryPage{
		Payments:   payments,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// CheckPaymentMethodStatus reports a method's effective availability. A
// method whose stored provider disagrees with the adapter actually serving
// it is reported disabled even when its flag says enabled.
func (s *ManagementService) CheckPaymentMethodStatus(ctx context.Context, method models.PaymentMethod) (*models.MethodStatusResponse, error) {
	config, err := s.repo.GetPaymentConfig(ctx, method)
	if err == gorm.ErrRecordNotFound {
		return &models.MethodStatusResponse{Method: method, IsEnabled: false, Reason: "method is not configured"}, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &models.MethodStatusResponse{
		Method:    method,
		Provider:  config.Provider,
		IsEnabled: config.IsEnabled,
	}
	if !config.IsEnabled {
		resp.Reason = "method is disabled"
		return resp, nil
	}

	gw, gwErr := s.registry.Get(method)
	if gwErr != nil {
		resp.IsEnabled = false
		resp.Reason = "no adapter is registered for this method"
		return resp, nil
	}
	if gw.Provider() != config.Provider {
		resp.IsEnabled = false
		resp.Reason = "configured provider does not match the serving adapter"
	}
	return resp, nil
}

func (s *ManagementService) appendAudit(ctx context.Context, p *models.Payment, action models.AuditAction, detail models.JSONB) {
	entry := &models.AuditLogEntry{
		Action:     action,
		Actor:      p.UserID.String(),
		EntityType: "payment",
		EntityRef:  p.TransactionRef,
		Detail:     detail,
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.log.WithField("transactionRef", p.TransactionRef).WithError(err).Error("failed to append audit entry")
	}
}

func (s *ManagementService) appendUserAudit(ctx context.Context, userID uuid.UUID, action models.AuditAction, detail models.JSONB) {
	entry := &models.AuditLogEntry{
		Action:     action,
		Actor:      userID.String(),
		EntityType: "user",
		EntityRef:  userID.String(),
		Detail:     detail,
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.log.WithField("userId", userID).WithError(err).Error("failed to append audit entry")
	}
}

func maskAccountNumber(n string) string {
	if len(n) <= 4 {
		return "****"
	}
	return "******" + n[len(n)-4:]
}
