package notify

import (
	"context"
	"fmt"

	"relove-be/internal/order"
)

type refundEmailNotifier struct {
	sender EmailSender
}

// NewRefundEmailNotifier emails the buyer when a refund is issued.
func NewRefundEmailNotifier(sender EmailSender) order.RefundNotifier {
	return &refundEmailNotifier{sender: sender}
}

func (n *refundEmailNotifier) OrderRefunded(ctx context.Context, o *order.Order, amountCents int64) error {
	to := ""
	if o.GuestEmail != nil {
		to = *o.GuestEmail
	}
	if to == "" {
		// Registered buyers get their email resolved by the caller-side
		// profile lookup; without one there is nobody to notify.
		return nil
	}

	subject := fmt.Sprintf("Refund issued - $%.2f", float64(amountCents)/100)
	html := fmt.Sprintf(`
		<h2>Your refund is on its way</h2>
		<p>We issued a refund of <strong>$%.2f</strong> for order %s.
		It usually appears on your statement within 5-10 business days.</p>`,
		float64(amountCents)/100, o.ID,
	)
	return n.sender.Send(ctx, to, subject, html)
}
