package order

import (
	"context"

	"relove-be/internal/address"
	"relove-be/internal/logger"

	"go.uber.org/zap"
)

// Event type markers persisted in order_events. One row per effect per
// order, so replayed confirmations stay idempotent.
const (
	EventPaid              = "paid"
	EventConfirmationEmail = "confirmation_email"
	EventAdminNotified     = "admin_notified"
	EventPickupChat        = "pickup_chat"
)

// PaidOrder is the snapshot handed to post-payment tasks. The payment is
// already captured when tasks run; nothing they do can undo it.
type PaidOrder struct {
	Order           *Order
	IntentID        string
	ReceiptEmail    string
	ShippingAddress *address.Address
}

// PostPaidTask is a best-effort side effect of a successful payment:
// emails, admin notifications, pickup chat, cache invalidation. Failures
// never fail the confirmation; they surface as diagnostics.
type PostPaidTask struct {
	Name string
	Run  func(ctx context.Context, po *PaidOrder) error
}

type Diagnostic struct {
	Task  string `json:"task"`
	Error string `json:"error"`
}

func runPostPaid(ctx context.Context, tasks []PostPaidTask, po *PaidOrder) []Diagnostic {
	log := logger.FromCtx(ctx).With(zap.String("order_id", po.Order.ID.String()))

	var diagnostics []Diagnostic
	for _, task := range tasks {
		if err := task.Run(ctx, po); err != nil {
			log.Warn("post-payment task failed",
				zap.String("task", task.Name),
				zap.Error(err),
			)
			diagnostics = append(diagnostics, Diagnostic{Task: task.Name, Error: err.Error()})
		}
	}
	return diagnostics
}

// PaidEventTask records the paid marker itself, giving downstream
// consumers a durable signal independent of the other effects.
func PaidEventTask(repo Repository) PostPaidTask {
	return PostPaidTask{
		Name: "paid_event",
		Run: func(ctx context.Context, po *PaidOrder) error {
			return repo.InsertEvent(ctx, po.Order.ID, EventPaid, po.IntentID)
		},
	}
}
