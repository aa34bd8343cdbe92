package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"payment-orchestrator/internal/models"
)

// PayOnDeliveryGateway is the internal adapter for cash-on-delivery. It makes
// no external calls: the charge is recorded with a confirmation code handed
// to the courier, and settlement happens out of band when delivery completes.
type PayOnDeliveryGateway struct {
	log *logrus.Logger
}

// NewPayOnDeliveryGateway creates the internal pay-on-delivery adapter.
func NewPayOnDeliveryGateway(log *logrus.Logger) *PayOnDeliveryGateway {
	return &PayOnDeliveryGateway{log: log}
}

func (g *PayOnDeliveryGateway) Provider() models.GatewayProvider { return models.ProviderInternal }

func (g *PayOnDeliveryGateway) SupportsRefunds() bool { return false }

// InitiateCharge records a pay-on-delivery charge. Funds never move here, so
// the result is always pending with a confirmation code the courier verifies
// at the door.
func (g *PayOnDeliveryGateway) InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	code, err := confirmationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation code: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"transactionRef": req.TransactionRef,
		"amount":         req.Amount,
	}).Info("pay-on-delivery charge recorded")

	return &ChargeResult{
		Status:         models.StatusPendingDelivery,
		ProviderRef:    req.TransactionRef,
		ProviderStatus: "AWAITING_DELIVERY",
		PayOnDelivery:  &models.PayOnDeliveryDetails{ConfirmationCode: code},
	}, nil
}

func (g *PayOnDeliveryGateway) AuthorizeSecondFactor(ctx context.Context, req *AuthorizeRequest) (*ChargeResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "pay-on-delivery has no second factor"}
}

// QueryStatus reports the charge as still awaiting delivery. The state only
// advances when the delivery flow confirms collection.
func (g *PayOnDeliveryGateway) QueryStatus(ctx context.Context, transactionRef string) (*StatusResult, error) {
	return &StatusResult{
		Status:         models.StatusPendingDelivery,
		ProviderStatus: "AWAITING_DELIVERY",
		ProviderRef:    transactionRef,
	}, nil
}

func (g *PayOnDeliveryGateway) Disburse(ctx context.Context, req *DisbursementRequest) (*DisbursementResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "disbursement is not supported"}
}

func (g *PayOnDeliveryGateway) GetReservedAccount(ctx context.Context, accountRef string) (*AccountDetails, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "reserved accounts are not supported"}
}

func (g *PayOnDeliveryGateway) GetMerchantAccount(ctx context.Context) (*AccountDetails, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "merchant account lookup is not supported"}
}

func (g *PayOnDeliveryGateway) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "refunds are not supported for pay-on-delivery"}
}

func (g *PayOnDeliveryGateway) VerifyBVN(ctx context.Context, req *BVNRequest) (*BVNResult, error) {
	return nil, &models.GatewayError{Provider: models.ProviderInternal, Message: "bvn verification is not supported"}
}

func confirmationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("POD-%06d", n.Int64()), nil
}
