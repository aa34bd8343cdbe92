package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"payment-orchestrator/internal/models"
)

// StripeGateway is the secondary card processor. It only handles card
// charges and their refunds; every other operation belongs to the primary
// provider and returns a gateway error here.
type StripeGateway struct {
	sc  *client.API
	log *logrus.Logger
}

// NewStripeGateway creates a Stripe gateway instance.
func NewStripeGateway(secretKey string, log *logrus.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{sc: sc, log: log}, nil
}

func (g *StripeGateway) Provider() models.GatewayProvider { return models.ProviderStripe }

func (g *StripeGateway) SupportsRefunds() bool { return true }

// InitiateCharge creates a payment intent for a tokenized card. Amounts are
// converted to the currency's minor unit.
func (g *StripeGateway) InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req.Method != models.MethodCard {
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: fmt.Sprintf("method %s not handled by this adapter", req.Method)}
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(req.Amount * 100)),
		Currency:      stripe.String(strings.ToLower(currencyOrDefault(req.Currency))),
		PaymentMethod: stripe.String(req.CardToken),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Narration),
	}
	params.Context = ctx
	params.AddMetadata("transaction_ref", req.TransactionRef)
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		g.log.WithField("transactionRef", req.TransactionRef).WithError(err).Error("stripe charge initiation failed")
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "payment intent creation failed", Cause: err}
	}

	result := &ChargeResult{
		ProviderRef:    pi.ID,
		ProviderStatus: string(pi.Status),
		Card:           &models.CardDetails{ProviderRef: pi.ID},
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = models.StatusCompleted
	case stripe.PaymentIntentStatusRequiresAction:
		result.Status = models.StatusPending
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.Secure3D = &models.Secure3DData{RedirectURL: pi.NextAction.RedirectToURL.URL, TokenID: pi.ID}
		}
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresConfirmation:
		result.Status = models.StatusPending
	default:
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Code: string(pi.Status), Message: "charge was not accepted by provider"}
	}

	return result, nil
}

// AuthorizeSecondFactor confirms an intent left in requires_action.
func (g *StripeGateway) AuthorizeSecondFactor(ctx context.Context, req *AuthorizeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := g.sc.PaymentIntents.Confirm(req.TokenID, params)
	if err != nil {
		g.log.WithField("transactionRef", req.TransactionRef).WithError(err).Error("stripe intent confirmation failed")
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "payment intent confirmation failed", Cause: err}
	}

	result := &ChargeResult{ProviderRef: pi.ID, ProviderStatus: string(pi.Status)}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = models.StatusCompleted
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction:
		result.Status = models.StatusPending
	default:
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Code: string(pi.Status), Message: "second-factor authorization failed"}
	}
	return result, nil
}

// QueryStatus fetches the intent and maps its state.
func (g *StripeGateway) QueryStatus(ctx context.Context, transactionRef string) (*StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.sc.PaymentIntents.Get(transactionRef, params)
	if err != nil {
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "payment intent lookup failed", Cause: err}
	}

	status := models.StatusFailed
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = models.StatusCompleted
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		status = models.StatusPending
	case stripe.PaymentIntentStatusCanceled:
		status = models.StatusCancelled
	}

	return &StatusResult{
		Status:         status,
		ProviderStatus: string(pi.Status),
		Amount:         float64(pi.Amount) / 100,
		ProviderRef:    pi.ID,
	}, nil
}

// CreateRefund refunds an intent.
func (g *StripeGateway) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderRef),
		Amount:        stripe.Int64(int64(req.Amount * 100)),
	}
	params.Context = ctx

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		g.log.WithField("transactionRef", req.TransactionRef).WithError(err).Error("stripe refund failed")
		return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "refund creation failed", Cause: err}
	}

	return &RefundResult{RefundReference: r.ID, Status: string(r.Status)}, nil
}

// Disburse is not supported by this processor.
func (g *StripeGateway) Disburse(ctx context.Context, req *DisbursementRequest) (*DisbursementResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "disbursement is not supported"}
}

// GetReservedAccount is not supported by this processor.
func (g *StripeGateway) GetReservedAccount(ctx context.Context, accountRef string) (*AccountDetails, error) {
	return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "reserved accounts are not supported"}
}

// GetMerchantAccount is not supported by this processor.
func (g *StripeGateway) GetMerchantAccount(ctx context.Context) (*AccountDetails, error) {
	return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "merchant account lookup is not supported"}
}

// VerifyBVN is not supported by this processor.
func (g *StripeGateway) VerifyBVN(ctx context.Context, req *BVNRequest) (*BVNResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderStripe, Message: "bvn verification is not supported"}
}
