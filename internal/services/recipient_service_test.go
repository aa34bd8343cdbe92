package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
)

func strPtr(s string) *string { return &s }

func TestResolveWithoutItemUsesMerchantAccount(t *testing.T) {
	primary := NewMockGateway(models.ProviderMonnify, true)
	primary.On("GetMerchantAccount", mock.Anything).Return(&gateway.AccountDetails{
		AccountNumber: "0123456789",
		AccountName:   "Platform",
	}, nil)

	svc := NewRecipientService(new(MockPaymentRepository), primary, testLogger())

	recipients, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{Amount: 1000})

	require.NoError(t, err)
	assert.Equal(t, "0123456789", recipients.Primary.AccountNumber)
	assert.Empty(t, recipients.Split)
}

func TestResolveVendorItemSplitsDeliveryFee(t *testing.T) {
	itemID := uuid.New()
	vendorID := uuid.New()

	repo := new(MockPaymentRepository)
	repo.On("GetVendorItem", mock.Anything, itemID).Return(&models.VendorItem{
		ID:          itemID,
		VendorID:    vendorID,
		Price:       4500,
		DeliveryFee: 500,
	}, nil)
	repo.On("GetVendorWallet", mock.Anything, vendorID).Return(&models.VendorWallet{
		VendorID:           vendorID,
		ItemAccountRef:     "item-ref",
		DeliveryAccountRef: "delivery-ref",
	}, nil)

	primary := NewMockGateway(models.ProviderMonnify, true)
	primary.On("GetReservedAccount", mock.Anything, "item-ref").Return(&gateway.AccountDetails{
		AccountReference: "item-ref",
		AccountNumber:    "1111111111",
		BankCode:         "058",
	}, nil)
	primary.On("GetReservedAccount", mock.Anything, "delivery-ref").Return(&gateway.AccountDetails{
		AccountReference: "delivery-ref",
		AccountNumber:    "2222222222",
		BankCode:         "058",
	}, nil)

	svc := NewRecipientService(repo, primary, testLogger())

	recipients, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{
		Amount: 5000,
		ItemID: strPtr(itemID.String()),
	})

	require.NoError(t, err)
	require.Len(t, recipients.Split, 2)
	assert.Equal(t, 4500.0, recipients.Split[0].SplitAmount)
	assert.Equal(t, "item-ref", recipients.Split[0].AccountReference)
	assert.Equal(t, 500.0, recipients.Split[1].SplitAmount)
	assert.Equal(t, "delivery-ref", recipients.Split[1].AccountReference)
}

func TestResolveVendorItemWithoutDeliveryFee(t *testing.T) {
	itemID := uuid.New()
	vendorID := uuid.New()

	repo := new(MockPaymentRepository)
	repo.On("GetVendorItem", mock.Anything, itemID).Return(&models.VendorItem{
		ID:       itemID,
		VendorID: vendorID,
		Price:    5000,
	}, nil)
	repo.On("GetVendorWallet", mock.Anything, vendorID).Return(&models.VendorWallet{
		VendorID:           vendorID,
		ItemAccountRef:     "item-ref",
		DeliveryAccountRef: "delivery-ref",
	}, nil)

	primary := NewMockGateway(models.ProviderMonnify, true)
	primary.On("GetReservedAccount", mock.Anything, mock.Anything).Return(&gateway.AccountDetails{
		AccountReference: "item-ref",
		AccountNumber:    "1111111111",
	}, nil)

	svc := NewRecipientService(repo, primary, testLogger())

	recipients, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{
		Amount: 5000,
		ItemID: strPtr(itemID.String()),
	})

	require.NoError(t, err)
	require.Len(t, recipients.Split, 1)
	assert.Equal(t, 5000.0, recipients.Split[0].SplitAmount)
}

func TestResolveMissingWalletReferencesFailsHard(t *testing.T) {
	itemID := uuid.New()
	vendorID := uuid.New()

	repo := new(MockPaymentRepository)
	repo.On("GetVendorItem", mock.Anything, itemID).Return(&models.VendorItem{
		ID:       itemID,
		VendorID: vendorID,
	}, nil)
	repo.On("GetVendorWallet", mock.Anything, vendorID).Return(&models.VendorWallet{
		VendorID:       vendorID,
		ItemAccountRef: "item-ref",
	}, nil)

	primary := NewMockGateway(models.ProviderMonnify, true)
	svc := NewRecipientService(repo, primary, testLogger())

	_, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{
		Amount: 5000,
		ItemID: strPtr(itemID.String()),
	})

	var resolution *models.RecipientResolutionError
	assert.ErrorAs(t, err, &resolution)
	primary.AssertNotCalled(t, "GetReservedAccount", mock.Anything, mock.Anything)
	primary.AssertNotCalled(t, "GetMerchantAccount", mock.Anything)
}

func TestResolveUnknownItem(t *testing.T) {
	itemID := uuid.New()

	repo := new(MockPaymentRepository)
	repo.On("GetVendorItem", mock.Anything, itemID).Return(nil, gorm.ErrRecordNotFound)

	svc := NewRecipientService(repo, NewMockGateway(models.ProviderMonnify, true), testLogger())

	_, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{
		Amount: 5000,
		ItemID: strPtr(itemID.String()),
	})

	var resolution *models.RecipientResolutionError
	assert.ErrorAs(t, err, &resolution)
}

func TestResolveInvalidItemID(t *testing.T) {
	svc := NewRecipientService(new(MockPaymentRepository), NewMockGateway(models.ProviderMonnify, true), testLogger())

	_, err := svc.Resolve(context.Background(), &models.InitiatePaymentRequest{
		Amount: 5000,
		ItemID: strPtr("not-a-uuid"),
	})

	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}
