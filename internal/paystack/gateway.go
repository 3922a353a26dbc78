package paystack

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the contract the settlement services require from the payment
// provider. *Client is the production implementation; tests substitute fakes.
type Gateway interface {
	InitializeTransaction(ctx context.Context, email, reference string, amount decimal.Decimal, metadata map[string]interface{}) (*InitializedTransaction, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifiedTransaction, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveBankAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
	CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error)
	InitiateTransfer(ctx context.Context, recipientCode, reference string, amount decimal.Decimal, reason string) (map[string]interface{}, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

var _ Gateway = (*Client)(nil)
