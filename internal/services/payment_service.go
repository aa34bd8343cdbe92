package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment-orchestrator/internal/clients"
	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
)

// PaymentService orchestrates the payment lifecycle: validation, fee and
// voucher computation, recipient routing, gateway dispatch, and the
// compensating FAILED transition when anything past persistence goes wrong.
type PaymentService struct {
	repo       repository.PaymentRepositoryInterface
	registry   *gateway.Registry
	fees       *FeeService
	recipients *RecipientService
	notifier   *clients.NotificationClient
	log        *logrus.Logger
}

// NewPaymentService creates a new payment orchestrator
func NewPaymentService(
	repo repository.PaymentRepositoryInterface,
	registry *gateway.Registry,
	fees *FeeService,
	recipients *RecipientService,
	notifier *clients.NotificationClient,
	log *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		repo:       repo,
		registry:   registry,
		fees:       fees,
		recipients: recipients,
		notifier:   notifier,
		log:        log,
	}
}

// ProcessPayment runs the full initiation pipeline. Re-submitting the same
// transactionRef returns the stored state instead of creating a duplicate.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *models.InitiatePaymentRequest) (*models.PaymentResponse, error) {
	userID, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	gw, method, err := s.resolveGateway(ctx, req.PaymentMethod, req.AllowFallback)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err == gorm.ErrRecordNotFound {
		return nil, models.NewValidationError("userId", "user does not exist")
	}
	if err != nil {
		return nil, err
	}

	// Voucher resolution happens before any persistence so a bad code
	// aborts cleanly.
	var voucher *models.Voucher
	var discount float64
	if req.VoucherCode != "" {
		voucherCtx := models.VoucherContextProduct
		if req.ServiceType != "" {
			voucherCtx = models.VoucherContextService
		}
		voucher, discount, err = s.fees.ResolveVoucher(ctx, req.VoucherCode, voucherCtx, req.Amount)
		if err != nil {
			return nil, err
		}
	}

	if req.TransactionRef == "" {
		req.TransactionRef = "PAY-" + uuid.NewString()
	}

	// Idempotency: a retried client request with the same reference gets
	// the existing payment back.
	existing, err := s.repo.GetPaymentByTransactionRef(ctx, req.TransactionRef)
	if err == nil {
		return models.FromPayment(existing), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	recipients, err := s.recipients.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.GetPaymentSettings(ctx)
	if err != nil {
		return nil, err
	}

	isTopUp := req.ServiceType == models.ServiceWalletTopup
	fees := s.fees.Compute(req.Amount, discount, isTopUp, settings)

	payment := &models.Payment{
		ID:              uuid.New(),
		TransactionRef:  req.TransactionRef,
		UserID:          userID,
		Amount:          fees.TotalAmount,
		RequestedAmount: req.Amount,
		PaymentMethod:   method,
		Status:          models.StatusPending,
		Provider:        gw.Provider(),
		ProductType:     req.ProductType,
		ServiceType:     req.ServiceType,
		Details:         models.PaymentDetails{Fees: fees},
	}
	if req.ItemID != nil && *req.ItemID != "" {
		if id, parseErr := uuid.Parse(*req.ItemID); parseErr == nil {
			payment.ItemID = &id
		}
	}
	if voucher != nil {
		payment.Details.Voucher = &models.VoucherApplication{Code: voucher.Code, DiscountAmount: discount}
	}

	if err := s.persistWithVoucher(ctx, payment, voucher, discount); err != nil {
		return nil, err
	}

	s.audit(ctx, payment, models.AuditPaymentInitiated, fmt.Sprintf("payment initiated via %s", method))

	result, err := gw.InitiateCharge(ctx, &gateway.ChargeRequest{
		TransactionRef: payment.TransactionRef,
		Amount:         payment.Amount,
		Currency:       "NGN",
		Method:         method,
		CustomerEmail:  user.Email,
		CustomerName:   strings.TrimSpace(user.FirstName + " " + user.LastName),
		CardToken:      req.CardToken,
		Narration:      narrationFor(req),
		Split:          recipients.Split,
	})
	if err != nil {
		return nil, s.failPayment(ctx, payment, err)
	}

	s.mergeChargeResult(payment, result)
	if err := s.persistChargeResult(ctx, payment); err != nil {
		return nil, err
	}
	if method == models.MethodCard {
		s.audit(ctx, payment, models.AuditCardChargeInitiated, "card charge initiated, status "+string(payment.Status))
	}

	return models.FromPayment(payment), nil
}

// ProcessBillPayment handles electricity bills: same initiation skeleton,
// then a disbursement to the distributor's bank account and an electricity
// token attached to the payment. The token is the deliverable; notification
// failure after it is stored never loses it.
func (s *PaymentService) ProcessBillPayment(ctx context.Context, req *models.InitiateBillPaymentRequest) (*models.PaymentResponse, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, models.NewValidationError("userId", "must be a valid UUID")
	}
	if req.Amount <= 0 {
		return nil, models.NewValidationError("amount", "must be greater than zero")
	}
	if req.MeterNumber == "" {
		return nil, models.NewValidationError("meterNumber", "is required")
	}
	if req.DestinationBankCode == "" || req.DestinationAccountNumber == "" {
		return nil, models.NewValidationError("destinationAccount", "bank code and account number are required")
	}
	if req.PaymentMethod == models.MethodPayOnDelivery {
		return nil, models.NewValidationError("paymentMethod", "pay on delivery cannot settle an electricity bill")
	}

	// Bills settle through the primary provider regardless of the label
	// the caller put on the method.
	gw, ok := s.registry.Primary(models.ProviderMonnify)
	if !ok {
		return nil, &models.ConfigurationError{Method: req.PaymentMethod, Message: "primary provider is not configured"}
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err == gorm.ErrRecordNotFound {
		return nil, models.NewValidationError("userId", "user does not exist")
	}
	if err != nil {
		return nil, err
	}

	var voucher *models.Voucher
	var discount float64
	if req.VoucherCode != "" {
		voucher, discount, err = s.fees.ResolveVoucher(ctx, req.VoucherCode, models.VoucherContextService, req.Amount)
		if err != nil {
			return nil, err
		}
	}

	if req.TransactionRef == "" {
		req.TransactionRef = "BILL-" + uuid.NewString()
	}
	existing, err := s.repo.GetPaymentByTransactionRef(ctx, req.TransactionRef)
	if err == nil {
		return models.FromPayment(existing), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	settings, err := s.repo.GetPaymentSettings(ctx)
	if err != nil {
		return nil, err
	}
	fees := s.fees.Compute(req.Amount, discount, false, settings)

	payment := &models.Payment{
		ID:              uuid.New(),
		TransactionRef:  req.TransactionRef,
		UserID:          userID,
		Amount:          fees.TotalAmount,
		RequestedAmount: req.Amount,
		PaymentMethod:   req.PaymentMethod,
		Status:          models.StatusPending,
		Provider:        gw.Provider(),
		ServiceType:     models.ServiceElectricity,
		MeterNumber:     req.MeterNumber,
		Details:         models.PaymentDetails{Fees: fees},
	}
	if voucher != nil {
		payment.Details.Voucher = &models.VoucherApplication{Code: voucher.Code, DiscountAmount: discount}
	}

	if err := s.persistWithVoucher(ctx, payment, voucher, discount); err != nil {
		return nil, err
	}

	s.audit(ctx, payment, models.AuditPaymentInitiated, "electricity bill payment initiated for meter "+req.MeterNumber)

	result, err := gw.InitiateCharge(ctx, &gateway.ChargeRequest{
		TransactionRef: payment.TransactionRef,
		Amount:         payment.Amount,
		Currency:       "NGN",
		Method:         req.PaymentMethod,
		CustomerEmail:  user.Email,
		CustomerName:   strings.TrimSpace(user.FirstName + " " + user.LastName),
		CardToken:      req.CardToken,
		Narration:      "Electricity bill, meter " + req.MeterNumber,
	})
	if err != nil {
		return nil, s.failPayment(ctx, payment, err)
	}

	// The charge outcome lands before any settlement attempt. Whatever the
	// disbursement leg does next, the customer's money is already accounted
	// for on this row.
	s.mergeChargeResult(payment, result)
	if err := s.persistChargeResult(ctx, payment); err != nil {
		return nil, err
	}

	if payment.Status == models.StatusPending || payment.Status == models.StatusCompleted {
		disb, err := gw.Disburse(ctx, &gateway.DisbursementRequest{
			Reference:     payment.TransactionRef + "-DISB",
			Amount:        payment.RequestedAmount,
			Narration:     "Electricity settlement, meter " + req.MeterNumber,
			BankCode:      req.DestinationBankCode,
			AccountNumber: req.DestinationAccountNumber,
		})
		if err != nil {
			return nil, s.deferDisbursement(ctx, payment, req, err)
		}
		payment.Details.Disbursement = &models.DisbursementInfo{
			Reference:              disb.Reference,
			Status:                 disb.Status,
			Amount:                 payment.RequestedAmount,
			DestinationBankCode:    req.DestinationBankCode,
			DestinationAccount:     req.DestinationAccountNumber,
			DestinationAccountName: disb.AccountName,
		}
		payment.Details.ElectricityToken = electricityToken(disb.Reference)
		if err := s.repo.UpdatePaymentDetails(ctx, payment.TransactionRef, payment.Details); err != nil {
			return nil, err
		}
		s.audit(ctx, payment, models.AuditBillDisbursed, "settlement disbursed, reference "+disb.Reference)
	}

	if payment.Details.ElectricityToken != "" && s.notifier != nil {
		if notifyErr := s.notifier.SendTransactionalMessage(ctx, "bill.token.issued", []string{userID.String()}, map[string]string{
			"transactionRef": payment.TransactionRef,
			"meterNumber":    req.MeterNumber,
			"token":          payment.Details.ElectricityToken,
		}); notifyErr != nil {
			s.log.WithField("transactionRef", payment.TransactionRef).WithError(notifyErr).Warn("token notification failed, token persisted")
		}
	}

	return models.FromPayment(payment), nil
}

// AuthorizeSecondFactor completes phase two of a pending card charge using
// the artifacts persisted with the payment.
func (s *PaymentService) AuthorizeSecondFactor(ctx context.Context, req *models.AuthorizePaymentRequest) (*models.PaymentResponse, error) {
	payment, err := s.repo.GetPaymentByTransactionRef(ctx, req.TransactionRef)
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if payment.Status != models.StatusPending {
		return nil, models.NewValidationError("transactionRef", "payment is not awaiting authorization")
	}

	tokenID := req.TokenID
	if tokenID == "" && payment.Details.Secure3D != nil {
		tokenID = payment.Details.Secure3D.TokenID
	}
	if tokenID == "" {
		return nil, models.NewValidationError("tokenId", "no authorization artifact for this payment")
	}

	gw, err := s.registry.Get(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}

	result, err := gw.AuthorizeSecondFactor(ctx, &gateway.AuthorizeRequest{
		TransactionRef: payment.TransactionRef,
		TokenID:        tokenID,
		OTP:            req.OTP,
	})
	if err != nil {
		return nil, s.failPayment(ctx, payment, err)
	}

	s.mergeChargeResult(payment, result)
	if payment.Details.Card != nil {
		if req.OTP != "" {
			payment.Details.Card.AuthorizedWith = "OTP"
		} else {
			payment.Details.Card.AuthorizedWith = "3DS"
		}
	}
	if err := s.persistChargeResult(ctx, payment); err != nil {
		return nil, err
	}
	s.audit(ctx, payment, models.AuditCardAuthorized, "second factor accepted, status "+string(payment.Status))

	return models.FromPayment(payment), nil
}

// SelectPaymentMethod walks the fixed priority list and returns the first
// enabled method.
func (s *PaymentService) SelectPaymentMethod(ctx context.Context) (models.PaymentMethod, error) {
	for _, method := range models.MethodFallbackOrder {
		if _, err := s.gatewayFor(ctx, method); err == nil {
			return method, nil
		}
	}
	return "", &models.ConfigurationError{Message: "no payment method is enabled"}
}

func (s *PaymentService) validateRequest(req *models.InitiatePaymentRequest) (uuid.UUID, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return uuid.Nil, models.NewValidationError("userId", "must be a valid UUID")
	}
	if req.Amount <= 0 {
		return uuid.Nil, models.NewValidationError("amount", "must be greater than zero")
	}
	if req.PaymentMethod == models.MethodWallet {
		return uuid.Nil, models.NewValidationError("paymentMethod", "wallet is not a supported payment method")
	}
	if req.ProductType != "" && req.ServiceType != "" {
		return uuid.Nil, models.NewValidationError("productType", "productType and serviceType are mutually exclusive")
	}
	if req.ProductType != "" && !models.ValidProductTypes[req.ProductType] {
		return uuid.Nil, models.NewValidationError("productType", "unknown product type")
	}
	if req.ServiceType != "" && !models.ValidServiceTypes[req.ServiceType] {
		return uuid.Nil, models.NewValidationError("serviceType", "unknown service type")
	}
	if req.ServiceType == models.ServiceElectricity {
		return uuid.Nil, models.NewValidationError("serviceType", "electricity bills must use the bill payment endpoint")
	}
	if req.ServiceType == models.ServiceWalletTopup && req.VoucherCode != "" {
		return uuid.Nil, models.NewValidationError("voucherCode", "vouchers cannot be applied to wallet top-ups")
	}
	if req.PaymentMethod == models.MethodPayOnDelivery && req.ServiceType == models.ServiceWalletTopup {
		return uuid.Nil, models.NewValidationError("paymentMethod", "pay on delivery cannot fund a wallet top-up")
	}
	return userID, nil
}

// resolveGateway returns the adapter for the requested method, walking the
// fallback priority list when the method is disabled and the caller allows
// substitution.
func (s *PaymentService) resolveGateway(ctx context.Context, method models.PaymentMethod, allowFallback bool) (gateway.PaymentGateway, models.PaymentMethod, error) {
	gw, err := s.gatewayFor(ctx, method)
	if err == nil {
		return gw, method, nil
	}
	if err != models.ErrMethodDisabled || !allowFallback {
		return nil, "", err
	}

	fallback, selErr := s.SelectPaymentMethod(ctx)
	if selErr != nil {
		return nil, "", selErr
	}
	gw, err = s.gatewayFor(ctx, fallback)
	if err != nil {
		return nil, "", err
	}
	s.log.WithFields(logrus.Fields{
		"requested": method,
		"selected":  fallback,
	}).Info("requested payment method disabled, fallback selected")
	return gw, fallback, nil
}

// gatewayFor consults the stored method configuration on every attempt, so
// an operator toggle takes effect without a restart. A method with no config
// row is unsupported; a read failure rejects the attempt rather than serving
// a stale answer.
func (s *PaymentService) gatewayFor(ctx context.Context, method models.PaymentMethod) (gateway.PaymentGateway, error) {
	config, err := s.repo.GetPaymentConfig(ctx, method)
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrMethodNotSupported
	}
	if err != nil {
		return nil, err
	}
	s.registry.SetEnabled(method, config.IsEnabled)
	return s.registry.Get(method)
}

// persistWithVoucher writes the payment row and the voucher spend in one
// transaction so a voucher is never consumed without a payment record.
func (s *PaymentService) persistWithVoucher(ctx context.Context, payment *models.Payment, voucher *models.Voucher, discount float64) error {
	return s.repo.WithTransaction(ctx, func(txRepo repository.PaymentRepositoryInterface) error {
		if voucher != nil {
			ok, err := txRepo.IncrementVoucherUsage(ctx, voucher.ID)
			if err != nil {
				return err
			}
			if !ok {
				return models.ErrVoucherInvalid
			}
		}
		if err := txRepo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if voucher != nil {
			return txRepo.CreateVoucherUsage(ctx, &models.VoucherUsage{
				VoucherID:      voucher.ID,
				PaymentID:      payment.ID,
				UserID:         payment.UserID,
				DiscountAmount: discount,
			})
		}
		return nil
	})
}

func (s *PaymentService) mergeChargeResult(p *models.Payment, r *gateway.ChargeResult) {
	p.Status = r.Status
	p.ProviderRef = r.ProviderRef
	if r.Status == models.StatusCompleted {
		now := time.Now()
		p.CompletedAt = &now
	}
	if r.Card != nil {
		p.Details.Card = r.Card
	}
	if r.Secure3D != nil {
		p.Details.Secure3D = r.Secure3D
	}
	if r.BankTransfer != nil {
		p.Details.BankTransfer = r.BankTransfer
	}
	if r.VirtualAccount != nil {
		p.Details.VirtualAccount = r.VirtualAccount
	}
	if r.Checkout != nil {
		p.Details.Checkout = r.Checkout
	}
	if r.PayOnDelivery != nil {
		p.Details.PayOnDelivery = r.PayOnDelivery
	}
}

// persistChargeResult writes the merged gateway outcome through the same
// conditional update the verification paths use. When the update touches no
// row, a webhook already drove the payment terminal; the stored row wins and
// replaces the in-flight view.
func (s *PaymentService) persistChargeResult(ctx context.Context, p *models.Payment) error {
	rows, err := s.repo.UpdatePaymentStatusIfNotTerminal(ctx, p.TransactionRef, p.Status, map[string]interface{}{
		"provider_ref": p.ProviderRef,
		"details":      p.Details,
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		stored, err := s.repo.GetPaymentByTransactionRef(ctx, p.TransactionRef)
		if err != nil {
			return err
		}
		*p = *stored
	}
	return nil
}

// deferDisbursement handles a failed settlement leg after the charge already
// moved money. The charge outcome stays as persisted; the failure is recorded
// on the payment, audited, and handed to the reconciliation worker.
func (s *PaymentService) deferDisbursement(ctx context.Context, p *models.Payment, req *models.InitiateBillPaymentRequest, cause error) error {
	p.Details.Disbursement = &models.DisbursementInfo{
		Reference:           p.TransactionRef + "-DISB",
		Status:              "FAILED",
		Amount:              p.RequestedAmount,
		DestinationBankCode: req.DestinationBankCode,
		DestinationAccount:  req.DestinationAccountNumber,
	}
	if err := s.repo.UpdatePaymentDetails(ctx, p.TransactionRef, p.Details); err != nil {
		s.log.WithField("transactionRef", p.TransactionRef).WithError(err).Error("failed to record disbursement failure")
	}
	s.audit(ctx, p, models.AuditBillDisburseFailed, "settlement disbursement failed: "+cause.Error())

	task := &models.WebhookRetryTask{
		TransactionRef: p.TransactionRef,
		MaxAttempts:    3,
		NextRunAt:      time.Now().Add(webhookRetryBase),
		LastError:      cause.Error(),
	}
	if err := s.repo.CreateWebhookRetryTask(ctx, task); err != nil {
		s.log.WithField("transactionRef", p.TransactionRef).WithError(err).Error("failed to schedule settlement reconciliation")
	}
	return cause
}

// failPayment is the compensating path: audit the failure, move the payment
// to FAILED unless it already reached a terminal state, and hand the original
// error back to the caller.
func (s *PaymentService) failPayment(ctx context.Context, p *models.Payment, cause error) error {
	s.audit(ctx, p, models.AuditPaymentFailed, cause.Error())
	_, err := s.repo.UpdatePaymentStatusIfNotTerminal(ctx, p.TransactionRef, models.StatusFailed, map[string]interface{}{
		"failure_message": cause.Error(),
	})
	if err != nil {
		s.log.WithField("transactionRef", p.TransactionRef).WithError(err).Error("failed to mark payment as failed")
	}
	return cause
}

func (s *PaymentService) audit(ctx context.Context, p *models.Payment, action models.AuditAction, detail string) {
	entry := &models.AuditLogEntry{
		Action:     action,
		Actor:      p.UserID.String(),
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

func narrationFor(req *models.InitiatePaymentRequest) string {
	if req.ServiceType != "" {
		return fmt.Sprintf("%s service payment", strings.ToLower(string(req.ServiceType)))
	}
	if req.ProductType != "" {
		return fmt.Sprintf("%s purchase", strings.ToLower(string(req.ProductType)))
	}
	return "payment"
}

func electricityToken(reference string) string {
	cleaned := strings.ToUpper(strings.ReplaceAll(reference, "-", ""))
	if len(cleaned) > 16 {
		cleaned = cleaned[len(cleaned)-16:]
	}
	return "ETK-" + cleaned
}
