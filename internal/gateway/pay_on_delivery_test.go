package gateway

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-orchestrator/internal/models"
)

func TestPayOnDeliveryChargeIssuesConfirmationCode(t *testing.T) {
	gw := NewPayOnDeliveryGateway(quietLogger())

	result, err := gw.InitiateCharge(context.Background(), &ChargeRequest{
		TransactionRef: "PAY-pod",
		Amount:         1175,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDelivery, result.Status)
	assert.Equal(t, "PAY-pod", result.ProviderRef)
	assert.Equal(t, "AWAITING_DELIVERY", result.ProviderStatus)
	require.NotNil(t, result.PayOnDelivery)
	assert.Regexp(t, regexp.MustCompile(`^POD-\d{6}$`), result.PayOnDelivery.ConfirmationCode)
}

func TestPayOnDeliveryQueryStatusStaysPending(t *testing.T) {
	gw := NewPayOnDeliveryGateway(quietLogger())

	status, err := gw.QueryStatus(context.Background(), "PAY-pod")

	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDelivery, status.Status)
}

func TestPayOnDeliveryUnsupportedOperations(t *testing.T) {
	gw := NewPayOnDeliveryGateway(quietLogger())
	ctx := context.Background()

	assert.False(t, gw.SupportsRefunds())

	_, err := gw.AuthorizeSecondFactor(ctx, &AuthorizeRequest{})
	assert.Error(t, err)
	_, err = gw.Disburse(ctx, &DisbursementRequest{})
	assert.Error(t, err)
	_, err = gw.CreateRefund(ctx, &RefundRequest{})
	assert.Error(t, err)
	_, err = gw.VerifyBVN(ctx, &BVNRequest{})
	assert.Error(t, err)
}
