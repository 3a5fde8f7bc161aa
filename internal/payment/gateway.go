package payment

import "context"

// Intent statuses checkout branches on. Anything else means the intent is
// still open for payment.
const (
	IntentSucceeded  = "succeeded"
	IntentCanceled   = "canceled"
	IntentProcessing = "processing"
)

type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	AmountCents    int64
	Currency       string
	LatestChargeID string
	Metadata       map[string]string
}

type CreateIntentInput struct {
	AmountCents         int64
	Currency            string
	ReceiptEmail        string
	TransferDestination string
	Metadata            map[string]string
	// IdempotencyKey is forwarded to the gateway so a retried create
	// returns the original intent instead of charging twice.
	IdempotencyKey string
}

type RefundInput struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
}

type RefundResult struct {
	ID          string
	Status      string
	AmountCents int64
}

// Gateway is the external payment processor. Injected everywhere so tests
// substitute a fake; no package-level client state.
type Gateway interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	UpdateIntentAmount(ctx context.Context, id string, amountCents int64, metadata map[string]string) error
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
}
