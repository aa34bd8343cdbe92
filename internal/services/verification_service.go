package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment-orchestrator/internal/clients"
	"payment-orchestrator/internal/events"
	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

const (
	webhookMarkerPrefix = "webhook:processed:"
	webhookMarkerTTL    = time.Hour
	webhookRetryBase    = 30 * time.Second
)

// VerificationService resolves a payment's true state. The poll path and the
// webhook path converge on the same transition logic, with the stored payment
// as the source of truth and the provider as a witness.
type VerificationService struct {
	repo      repository.PaymentRepositoryInterface
	registry  *gateway.Registry
	redis     *redis.Client
	publisher *events.Publisher
	notifier  *clients.NotificationClient
	secret    string
	log       *logrus.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	repo repository.PaymentRepositoryInterface,
	registry *gateway.Registry,
	redisClient *redis.Client,
	publisher *events.Publisher,
	notifier *clients.NotificationClient,
	webhookSecret string,
	log *logrus.Logger,
) *VerificationService {
	return &VerificationService{
		repo:      repo,
		registry:  registry,
		redis:     redisClient,
		publisher: publisher,
		notifier:  notifier,
		secret:    webhookSecret,
		log:       log,
	}
}

// VerifyPayment polls the provider for a payment's status. A payment already
// in a terminal state is returned as stored without contacting the provider.
// Every verification attempt is audited, even when nothing changed.
func (s *VerificationService) VerifyPayment(ctx context.Context, transactionRef string) (*models.PaymentResponse, error) {
	payment, err := s.repo.GetPaymentByTransactionRef(ctx, transactionRef)
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	if payment.Status.IsTerminal() {
		return models.FromPayment(payment), nil
	}

	gw, ok := s.registry.Primary(payment.Provider)
	if !ok {
		return nil, &models.ConfigurationError{Method: payment.PaymentMethod, Message: "no adapter for provider " + string(payment.Provider)}
	}

	status, err := gw.QueryStatus(ctx, transactionRef)
	if err != nil {
		return nil, err
	}

	return s.applyProviderStatus(ctx, payment, status.Status, status.Amount, "poll")
}

// HandleWebhook processes an inbound provider webhook. The signature is
// checked against the raw body before any field is read; an invalid
// signature is terminal. Duplicate deliveries are short-circuited by a
// processed marker; any later failure schedules a bounded retry through the
// poll path.
func (s *VerificationService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.validSignature(rawBody, signature) {
		s.log.Warn("webhook rejected: invalid signature")
		return models.ErrInvalidSignature
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return models.NewValidationError("body", "malformed webhook payload")
	}
	if payload.TransactionReference == "" {
		return models.NewValidationError("transactionReference", "is required")
	}

	// Idempotency against at-least-once delivery.
	marker := webhookMarkerPrefix + payload.TransactionReference
	set, err := s.redis.SetNX(ctx, marker, "1", webhookMarkerTTL).Result()
	if err != nil {
		s.log.WithError(err).Warn("webhook marker check failed, continuing without dedup")
	} else if !set {
		s.log.WithField("transactionRef", payload.TransactionReference).Info("duplicate webhook delivery ignored")
		return models.ErrDuplicateWebhook
	}

	if err := s.processWebhook(ctx, &payload); err != nil {
		// A mismatch already resolved into PENDING_MANUAL; only genuine
		// processing failures earn a retry.
		var mismatch *models.AmountMismatchError
		if !errors.As(err, &mismatch) {
			s.scheduleRetry(ctx, payload.TransactionReference, err)
			return err
		}
	}
	return nil
}

func (s *VerificationService) processWebhook(ctx context.Context, payload *models.WebhookPayload) error {
	payment, err := s.repo.GetPaymentByTransactionRef(ctx, payload.TransactionReference)
	if err == gorm.ErrRecordNotFound {
		return models.ErrPaymentNotFound
	}
	if err != nil {
		return err
	}
	if payment.Status.IsTerminal() {
		return nil
	}

	status := gateway.MapProviderStatus(payload.PaymentStatus)
	_, err = s.applyProviderStatus(ctx, payment, status, payload.Amount, "webhook")
	return err
}

// applyProviderStatus is the single transition point both entry paths use.
// An amount disagreement overrides whatever the provider claims: the payment
// is parked in PENDING_MANUAL with a fraud alert, never auto-completed.
func (s *VerificationService) applyProviderStatus(ctx context.Context, payment *models.Payment, status models.TransactionStatus, reportedAmount float64, source string) (*models.PaymentResponse, error) {
	if reportedAmount > 0 && reportedAmount != payment.Amount {
		return s.flagAmountMismatch(ctx, payment, reportedAmount, source)
	}

	rows, err := s.repo.UpdatePaymentStatusIfNotTerminal(ctx, payment.TransactionRef, status, nil)
	if err != nil {
		return nil, err
	}
	if rows > 0 {
		payment.Status = status
		if status == models.StatusCompleted {
			now := time.Now()
			payment.CompletedAt = &now
		}
	}

	action := models.AuditPaymentVerified
	if source == "webhook" {
		action = models.AuditWebhookUpdate
	}
	s.audit(ctx, payment, action, source+" verification resolved status "+string(payment.Status))

	s.emitLifecycle(ctx, payment)
	return models.FromPayment(payment), nil
}

func (s *VerificationService) flagAmountMismatch(ctx context.Context, payment *models.Payment, reportedAmount float64, source string) (*models.PaymentResponse, error) {
	alert := &models.FraudAlert{
		PaymentID:      payment.ID,
		TransactionRef: payment.TransactionRef,
		ExpectedAmount: payment.Amount,
		ReportedAmount: reportedAmount,
		Source:         source,
	}
	if err := s.repo.CreateFraudAlert(ctx, alert); err != nil {
		return nil, err
	}

	rows, err := s.repo.UpdatePaymentStatusIfNotTerminal(ctx, payment.TransactionRef, models.StatusPendingManual, nil)
	if err != nil {
		return nil, err
	}
	if rows > 0 {
		payment.Status = models.StatusPendingManual
	}

	s.audit(ctx, payment, models.AuditFraudFlagged, "amount mismatch during "+source+" verification")
	s.log.WithFields(logrus.Fields{
		"transactionRef": payment.TransactionRef,
		"expected":       payment.Amount,
		"reported":       reportedAmount,
		"source":         source,
	}).Warn("amount mismatch, payment parked for manual review")

	if s.publisher != nil {
		s.publisher.Publish(events.SubjectPaymentFlagged, payment)
	}

	return models.FromPayment(payment), &models.AmountMismatchError{
		TransactionRef: payment.TransactionRef,
		Expected:       payment.Amount,
		Reported:       reportedAmount,
	}
}

func (s *VerificationService) emitLifecycle(ctx context.Context, payment *models.Payment) {
	if s.publisher != nil {
		switch payment.Status {
		case models.StatusCompleted, models.StatusConfirmed:
			s.publisher.Publish(events.SubjectPaymentCompleted, payment)
		case models.StatusFailed:
			s.publisher.Publish(events.SubjectPaymentFailed, payment)
		}
	}

	if s.notifier != nil && payment.Status == models.StatusCompleted {
		if err := s.notifier.SendTransactionalMessage(ctx, "payment.completed", []string{payment.UserID.String()}, map[string]string{
			"transactionRef": payment.TransactionRef,
		}); err != nil {
			s.log.WithField("transactionRef", payment.TransactionRef).WithError(err).Warn("completion notification failed")
		}
	}
}

// scheduleRetry enqueues a durable reconciliation task. The retry worker
// re-invokes the poll path, so webhook and poll converge on one source of
// truth instead of re-processing the raw payload.
func (s *VerificationService) scheduleRetry(ctx context.Context, transactionRef string, cause error) {
	task := &models.WebhookRetryTask{
		TransactionRef: transactionRef,
		MaxAttempts:    3,
		NextRunAt:      time.Now().Add(webhookRetryBase),
		LastError:      cause.Error(),
	}
	if err := s.repo.CreateWebhookRetryTask(ctx, task); err != nil {
		s.log.WithField("transactionRef", transactionRef).WithError(err).Error("failed to schedule webhook retry")
	}
}

func (s *VerificationService) validSignature(rawBody []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *VerificationService) audit(ctx context.Context, p *models.Payment, action models.AuditAction, detail string) {
	entry := &models.AuditLogEntry{
		Action:     action,
		Actor:      "system",
		EntityType: "payment",
		EntityRef:  p.TransactionRef,
		Detail:     models.JSONB{"detail": detail, "paymentId": p.ID.String()},
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"transactionRef": p.TransactionRef,
			"action":         action,
		}).WithError(err).Error("failed to append audit entry")
	}
}
