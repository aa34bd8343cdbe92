package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

// RetryWorker drains the webhook retry queue. Tasks survive restarts because
// attempt counts live in the database, and each attempt re-invokes the poll
// path rather than replaying the original webhook payload.
type RetryWorker struct {
	repo         repository.PaymentRepositoryInterface
	verification *VerificationService
	interval     time.Duration
	batchSize    int
	log          *logrus.Logger
}

// NewRetryWorker creates a new webhook retry worker
func NewRetryWorker(repo repository.PaymentRepositoryInterface, verification *VerificationService, log *logrus.Logger) *RetryWorker {
	return &RetryWorker{
		repo:         repo,
		verification: verification,
		interval:     15 * time.Second,
		batchSize:    20,
		log:          log,
	}
}

// Run polls for due tasks until the context is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainDue(ctx)
		}
	}
}

func (w *RetryWorker) drainDue(ctx context.Context) {
	tasks, err := w.repo.ClaimDueWebhookRetries(ctx, w.batchSize)
	if err != nil {
		w.log.WithError(err).Error("failed to claim due webhook retries")
		return
	}

	for i := range tasks {
		w.runTask(ctx, &tasks[i])
	}
}

// runTask executes one reconciliation attempt with exponential backoff
// between attempts. A task that exhausts its attempts is marked done and
// left to the audit trail.
func (w *RetryWorker) runTask(ctx context.Context, task *models.WebhookRetryTask) {
	task.Attempts++

	_, err := w.verification.VerifyPayment(ctx, task.TransactionRef)
	if err == nil {
		task.Done = true
		task.LastError = ""
	} else {
		task.LastError = err.Error()
		if task.Attempts >= task.MaxAttempts {
			task.Done = true
			w.log.WithFields(logrus.Fields{
				"transactionRef": task.TransactionRef,
				"attempts":       task.Attempts,
			}).WithError(err).Error("webhook reconciliation exhausted retries")
		} else {
			backoff := webhookRetryBase * time.Duration(1<<task.Attempts)
			task.NextRunAt = time.Now().Add(backoff)
		}
	}

	if updateErr := w.repo.UpdateWebhookRetryTask(ctx, task); updateErr != nil {
		w.log.WithField("transactionRef", task.TransactionRef).WithError(updateErr).Error("failed to persist retry task state")
	}
}
