package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

// Recipients is the resolved destination set for a payment: where the money
// lands and, for vendor purchases, the split between the item proceeds and
// the delivery fee.
type Recipients struct {
	Primary *gateway.AccountDetails
	Split   []gateway.SplitAccount
}

// RecipientService decides who gets paid. Service payments settle into the
// platform's merchant account; vendor item purchases settle into the vendor's
// reserved accounts, split into item proceeds and delivery fee.
type RecipientService struct {
	repo    repository.PaymentRepositoryInterface
	primary gateway.PaymentGateway
	log     *logrus.Logger
}

// NewRecipientService creates a new recipient service
func NewRecipientService(repo repository.PaymentRepositoryInterface, primary gateway.PaymentGateway, log *logrus.Logger) *RecipientService {
	return &RecipientService{repo: repo, primary: primary, log: log}
}

// Resolve picks the recipient accounts for a payment. A vendor purchase
// whose wallet is missing either reserved account reference is a hard
// failure: money must never default to the platform account silently.
func (s *RecipientService) Resolve(ctx context.Context, req *models.InitiatePaymentRequest) (*Recipients, error) {
	if req.ItemID == nil || *req.ItemID == "" {
		account, err := s.primary.GetMerchantAccount(ctx)
		if err != nil {
			return nil, &models.RecipientResolutionError{Message: "merchant account lookup failed", Cause: err}
		}
		return &Recipients{Primary: account}, nil
	}

	itemID, err := uuid.Parse(*req.ItemID)
	if err != nil {
		return nil, models.NewValidationError("itemId", "must be a valid UUID")
	}

	item, err := s.repo.GetVendorItem(ctx, itemID)
	if err == gorm.ErrRecordNotFound {
		return nil, &models.RecipientResolutionError{Message: "item does not exist"}
	}
	if err != nil {
		return nil, err
	}

	wallet, err := s.repo.GetVendorWallet(ctx, item.VendorID)
	if err == gorm.ErrRecordNotFound {
		return nil, &models.RecipientResolutionError{Message: "vendor has no settlement wallet"}
	}
	if err != nil {
		return nil, err
	}
	if wallet.ItemAccountRef == "" || wallet.DeliveryAccountRef == "" {
		s.log.WithFields(logrus.Fields{
			"vendorId": item.VendorID,
			"itemId":   itemID,
		}).Error("vendor wallet is missing reserved account references")
		return nil, &models.RecipientResolutionError{Message: "vendor wallet is missing reserved account references"}
	}

	itemAccount, err := s.primary.GetReservedAccount(ctx, wallet.ItemAccountRef)
	if err != nil {
		return nil, &models.RecipientResolutionError{Message: "item account lookup failed", Cause: err}
	}
	deliveryAccount, err := s.primary.GetReservedAccount(ctx, wallet.DeliveryAccountRef)
	if err != nil {
		return nil, &models.RecipientResolutionError{Message: "delivery account lookup failed", Cause: err}
	}

	deliveryFee := item.DeliveryFee
	split := []gateway.SplitAccount{
		{
			AccountReference: itemAccount.AccountReference,
			AccountNumber:    itemAccount.AccountNumber,
			BankCode:         itemAccount.BankCode,
			SplitAmount:      req.Amount - deliveryFee,
		},
	}
	if deliveryFee > 0 {
		split = append(split, gateway.SplitAccount{
			AccountReference: deliveryAccount.AccountReference,
			AccountNumber:    deliveryAccount.AccountNumber,
			BankCode:         deliveryAccount.BankCode,
			SplitAmount:      deliveryFee,
		})
	}

	return &Recipients{Primary: itemAccount, Split: split}, nil
}
