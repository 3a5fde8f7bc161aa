package notify

import (
	"context"
	"fmt"

	"relove-be/internal/address"
	"relove-be/internal/order"
	"relove-be/internal/pricing"
)

// ConfirmationEmailTask sends the buyer's receipt once per order. The
// order_events marker is checked first and written after, so a replayed
// confirmation never sends a second receipt.
func ConfirmationEmailTask(orders order.Repository, sender EmailSender, siteURL string, tokens order.TokenIssuer) order.PostPaidTask {
	return order.PostPaidTask{
		Name: "confirmation_email",
		Run: func(ctx context.Context, po *order.PaidOrder) error {
			if po.ReceiptEmail == "" {
				return nil
			}

			sent, err := orders.HasEvent(ctx, po.Order.ID, order.EventConfirmationEmail)
			if err != nil {
				return err
			}
			if sent {
				return nil
			}

			orderURL := fmt.Sprintf("%s/orders/%s", siteURL, po.Order.ID)
			if po.Order.UserID == nil && tokens != nil {
				if token, err := tokens.Issue(po.Order.ID); err == nil {
					orderURL += "?token=" + token
				}
			}

			subject := fmt.Sprintf("Order confirmed - $%.2f", float64(po.Order.TotalCents)/100)
			html := confirmationHTML(po.Order, orderURL)
			if err := sender.Send(ctx, po.ReceiptEmail, subject, html); err != nil {
				return err
			}

			return orders.InsertEvent(ctx, po.Order.ID, order.EventConfirmationEmail, po.ReceiptEmail)
		},
	}
}

func confirmationHTML(o *order.Order, orderURL string) string {
	rows := ""
	for _, item := range o.Items {
		rows += fmt.Sprintf(
			"<tr><td>%s</td><td>%d</td><td>$%.2f</td></tr>",
			item.ProductID, item.Quantity, float64(item.LineTotalCents)/100,
		)
	}

	return fmt.Sprintf(`
		<h2>Thanks for your order!</h2>
		<table>%s</table>
		<p>Subtotal: $%.2f<br>
		Shipping: $%.2f<br>
		Tax: $%.2f<br>
		<strong>Total: $%.2f</strong></p>
		<p><a href="%s">View your order</a></p>`,
		rows,
		float64(o.SubtotalCents)/100,
		float64(o.ShippingCents)/100,
		float64(o.TaxCents)/100,
		float64(o.TotalCents)/100,
		orderURL,
	)
}

// AdminNotifyTask surfaces the new paid order in the seller dashboard.
func AdminNotifyTask(repo Repository, orders order.Repository) order.PostPaidTask {
	return order.PostPaidTask{
		Name: "admin_notify",
		Run: func(ctx context.Context, po *order.PaidOrder) error {
			done, err := orders.HasEvent(ctx, po.Order.ID, order.EventAdminNotified)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

			title := "New order paid"
			body := fmt.Sprintf("Order %s paid: $%.2f (%s)",
				po.Order.ID, float64(po.Order.TotalCents)/100, po.Order.Fulfillment)
			if err := repo.InsertAdminNotification(ctx, po.Order.TenantID, po.Order.ID, title, body); err != nil {
				return err
			}

			return orders.InsertEvent(ctx, po.Order.ID, order.EventAdminNotified, "")
		},
	}
}

// PickupChatTask opens a buyer/seller chat for pickup orders only.
func PickupChatTask(repo Repository, orders order.Repository) order.PostPaidTask {
	return order.PostPaidTask{
		Name: "pickup_chat",
		Run: func(ctx context.Context, po *order.PaidOrder) error {
			if po.Order.Fulfillment != pricing.FulfillmentPickup {
				return nil
			}

			done, err := orders.HasEvent(ctx, po.Order.ID, order.EventPickupChat)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

			if err := repo.CreatePickupChat(ctx, po.Order.TenantID, po.Order.ID, po.Order.UserID, po.Order.GuestEmail); err != nil {
				return err
			}

			return orders.InsertEvent(ctx, po.Order.ID, order.EventPickupChat, "")
		},
	}
}

// AddressSnapshotTask freezes the shipping destination on the order and
// refreshes the buyer's default address for next time.
func AddressSnapshotTask(addresses address.Repository) order.PostPaidTask {
	return order.PostPaidTask{
		Name: "address_snapshot",
		Run: func(ctx context.Context, po *order.PaidOrder) error {
			if po.Order.Fulfillment != pricing.FulfillmentShip || po.ShippingAddress == nil {
				return nil
			}

			if err := addresses.InsertOrderSnapshot(ctx, po.Order.ID, po.ShippingAddress); err != nil {
				return err
			}

			if po.Order.UserID != nil {
				if err := addresses.UpsertUserDefault(ctx, *po.Order.UserID, po.ShippingAddress); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
