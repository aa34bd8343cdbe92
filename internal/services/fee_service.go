package services

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

// FeeService computes the committed amount for a payment: voucher discount
// first, then VAT on the adjusted base, then the flat charge for the flow.
type FeeService struct {
	repo repository.PaymentRepositoryInterface
}

// NewFeeService creates a new fee service
func NewFeeService(repo repository.PaymentRepositoryInterface) *FeeService {
	return &FeeService{repo: repo}
}

// Compute builds the fee breakdown for a requested amount. The voucher
// discount is applied before VAT, the adjusted base never goes below zero,
// and wallet top-ups pay the top-up charge instead of the service fee.
func (s *FeeService) Compute(requestedAmount, voucherDiscount float64, isWalletTopUp bool, settings *models.PaymentSettings) *models.FeeBreakdown {
	adjusted := math.Max(0, requestedAmount-voucherDiscount)
	vat := roundMoney(adjusted * settings.VATRate)

	flat := settings.ServiceCharge
	breakdown := &models.FeeBreakdown{
		RequestedAmount: requestedAmount,
		VoucherDiscount: voucherDiscount,
		AdjustedAmount:  adjusted,
		VAT:             vat,
	}
	if isWalletTopUp {
		flat = settings.TopupCharge
		breakdown.TopupCharge = flat
	} else {
		breakdown.ServiceFee = flat
	}

	breakdown.TotalAmount = roundMoney(adjusted + flat + vat)
	return breakdown
}

// ResolveVoucher validates a voucher code against the payment context and
// returns the voucher plus the discount it grants on the base amount. The
// usage count is NOT consumed here; redemption happens atomically with the
// payment insert.
func (s *FeeService) ResolveVoucher(ctx context.Context, code string, voucherContext models.VoucherContext, baseAmount float64) (*models.Voucher, float64, error) {
	voucher, err := s.repo.GetVoucherByCode(ctx, code)
	if err == gorm.ErrRecordNotFound {
		return nil, 0, models.ErrVoucherInvalid
	}
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	if now.Before(voucher.ValidFrom) {
		return nil, 0, models.ErrVoucherInvalid
	}
	if voucher.ValidUntil != nil && now.After(*voucher.ValidUntil) {
		return nil, 0, models.ErrVoucherInvalid
	}
	if voucher.MaxUsageCount != nil && voucher.CurrentUsageCount >= *voucher.MaxUsageCount {
		return nil, 0, models.ErrVoucherInvalid
	}
	if voucher.Context != voucherContext {
		return nil, 0, models.ErrVoucherInapplicable
	}

	return voucher, voucher.DiscountFor(baseAmount), nil
}

// roundMoney rounds to two decimal places, half away from zero.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
