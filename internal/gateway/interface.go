package gateway

import (
	"context"

	"payment-orchestrator/internal/models"
)

// PaymentGateway is the contract every gateway adapter implements. Adapters
// are stateless per call aside from a short-lived auth token cache; they never
// retry a failed charge on their own.
type PaymentGateway interface {
	// Provider returns the provider backing this adapter.
	Provider() models.GatewayProvider

	// InitiateCharge starts a payment. Depending on the method this returns
	// either a completed charge, a pending charge with a second-factor
	// artifact (OTP token or 3DS redirect), a bank-transfer account, a
	// reserved virtual account, or a hosted-checkout redirect.
	InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// AuthorizeSecondFactor completes phase two of a card charge.
	AuthorizeSecondFactor(ctx context.Context, req *AuthorizeRequest) (*ChargeResult, error)

	// QueryStatus fetches the provider's view of a transaction.
	QueryStatus(ctx context.Context, transactionRef string) (*StatusResult, error)

	// Disburse pushes funds to a third-party bank account (bill settlement).
	Disburse(ctx context.Context, req *DisbursementRequest) (*DisbursementResult, error)

	// GetReservedAccount resolves a reserved account reference to live
	// account details.
	GetReservedAccount(ctx context.Context, accountRef string) (*AccountDetails, error)

	// GetMerchantAccount resolves the platform's own merchant account.
	GetMerchantAccount(ctx context.Context) (*AccountDetails, error)

	// CreateRefund refunds a settled or failed charge.
	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// VerifyBVN queries the provider's identity-verification endpoint.
	VerifyBVN(ctx context.Context, req *BVNRequest) (*BVNResult, error)

	// SupportsRefunds reports whether CreateRefund is backed by a real
	// provider endpoint.
	SupportsRefunds() bool
}

// SplitAccount routes a share of the proceeds to a reserved sub-account.
type SplitAccount struct {
	AccountReference string  `json:"accountReference"`
	AccountNumber    string  `json:"accountNumber"`
	BankCode         string  `json:"bankCode"`
	SplitAmount      float64 `json:"splitAmount"`
}

// ChargeRequest carries everything an adapter needs to start a payment.
type ChargeRequest struct {
	TransactionRef string
	Amount         float64
	Currency       string
	Method         models.PaymentMethod
	CustomerEmail  string
	CustomerName   string
	CardToken      string
	Narration      string
	Split          []SplitAccount
}

// AuthorizeRequest completes an OTP or 3DS flow started by InitiateCharge.
type AuthorizeRequest struct {
	TransactionRef string
	TokenID        string
	OTP            string
}

// ChargeResult is the normalized outcome of InitiateCharge or
// AuthorizeSecondFactor. Exactly one artifact pointer is set per method.
type ChargeResult struct {
	Status         models.TransactionStatus
	ProviderRef    string
	ProviderStatus string
	Card           *models.CardDetails
	Secure3D       *models.Secure3DData
	BankTransfer   *models.BankTransferDetails
	VirtualAccount *models.VirtualAccountDetails
	Checkout       *models.CheckoutDetails
	PayOnDelivery  *models.PayOnDeliveryDetails
}

// StatusResult is the provider's view of a transaction.
type StatusResult struct {
	Status         models.TransactionStatus
	ProviderStatus string
	Amount         float64
	ProviderRef    string
}

// DisbursementRequest pushes settlement funds for a bill payment.
type DisbursementRequest struct {
	Reference     string
	Amount        float64
	Narration     string
	BankCode      string
	AccountNumber string
}

// DisbursementResult reports the outcome of a disbursement.
type DisbursementResult struct {
	Reference   string
	Status      string
	AccountName string
}

// AccountDetails are live account details for a reserved or merchant account.
type AccountDetails struct {
	AccountReference string
	AccountNumber    string
	AccountName      string
	BankName         string
	BankCode         string
}

// RefundRequest refunds a charge at the provider.
type RefundRequest struct {
	TransactionRef string
	ProviderRef    string
	Amount         float64
	Reason         string
}

// RefundResult reports the provider refund reference and status.
type RefundResult struct {
	RefundReference string
	Status          string
}

// BVNRequest verifies a bank verification number against an account.
type BVNRequest struct {
	BVN           string
	AccountNumber string
	BankCode      string
}

// BVNResult carries the identity the provider has on file.
type BVNResult struct {
	FirstName     string
	LastName      string
	AccountName   string
	AccountNumber string
}
