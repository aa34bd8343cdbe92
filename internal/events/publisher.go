package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"payment-orchestrator/internal/models"
)

// Event subjects published on the payments stream.
const (
	SubjectPaymentCompleted = "payments.payment.completed"
	SubjectPaymentFailed    = "payments.payment.failed"
	SubjectPaymentRefunded  = "payments.payment.refunded"
	SubjectPaymentFlagged   = "payments.payment.flagged"
)

// PaymentEvent is the wire shape of a lifecycle event.
type PaymentEvent struct {
	TransactionRef string                   `json:"transactionRef"`
	PaymentID      string                   `json:"paymentId"`
	UserID         string                   `json:"userId"`
	Status         models.TransactionStatus `json:"status"`
	Method         models.PaymentMethod     `json:"method"`
	Amount         float64                  `json:"amount"`
	OccurredAt     time.Time                `json:"occurredAt"`
}

// Publisher publishes payment lifecycle events over NATS JetStream.
type Publisher struct {
	js  nats.JetStreamContext
	log *logrus.Entry
}

// NewPublisher connects to NATS and ensures the payments stream exists.
func NewPublisher(natsURL string, log *logrus.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("payment-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "PAYMENT_EVENTS",
		Subjects: []string{"payments.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.WithError(err).Warn("failed to ensure PAYMENT_EVENTS stream")
	}

	return &Publisher{
		js:  js,
		log: log.WithField("component", "events.publisher"),
	}, nil
}

// Publish emits a lifecycle event for a payment. Event delivery is best
// effort: a publish failure is logged, never surfaced to the payment flow.
func (p *Publisher) Publish(subject string, payment *models.Payment) {
	event := PaymentEvent{
		TransactionRef: payment.TransactionRef,
		PaymentID:      payment.ID.String(),
		UserID:         payment.UserID.String(),
		Status:         payment.Status,
		Method:         payment.PaymentMethod,
		Amount:         payment.Amount,
		OccurredAt:     time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal payment event")
		return
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.log.WithFields(logrus.Fields{
			"subject":        subject,
			"transactionRef": payment.TransactionRef,
		}).WithError(err).Warn("failed to publish payment event")
	}
}
