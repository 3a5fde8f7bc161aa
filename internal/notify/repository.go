package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type Repository interface {
	InsertAdminNotification(ctx context.Context, tenantID string, orderID uuid.UUID, title, body string) error
	// CreatePickupChat opens a buyer/seller thread so pickup logistics
	// can be arranged. One chat per order.
	CreatePickupChat(ctx context.Context, tenantID string, orderID uuid.UUID, userID, guestEmail *string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertAdminNotification(ctx context.Context, tenantID string, orderID uuid.UUID, title, body string) error {
	query := `
		INSERT INTO admin_notifications (id, tenant_id, order_id, title, body)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, uuid.New(), tenantID, orderID, title, body)
	if err != nil {
		return fmt.Errorf("failed to insert admin notification: %w", err)
	}
	return nil
}

func (r *repository) CreatePickupChat(ctx context.Context, tenantID string, orderID uuid.UUID, userID, guestEmail *string) error {
	query := `
		INSERT INTO chats (id, tenant_id, order_id, user_id, guest_email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, uuid.New(), tenantID, orderID, userID, guestEmail)
	if err != nil {
		return fmt.Errorf("failed to create pickup chat: %w", err)
	}
	return nil
}
