package address

import (
	"context"
	"database/sql"
	"errors"

	"relove-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// InsertOrderSnapshot freezes the shipping destination a paid order
	// was confirmed with. One snapshot per order.
	InsertOrderSnapshot(ctx context.Context, orderID uuid.UUID, addr *Address) error
	GetOrderSnapshot(ctx context.Context, orderID uuid.UUID) (*Address, error)
	// UpsertUserDefault keeps the user's latest checkout address as their
	// default for the next checkout.
	UpsertUserDefault(ctx context.Context, userID string, addr *Address) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertOrderSnapshot(
	ctx context.Context,
	orderID uuid.UUID,
	addr *Address,
) error {

	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Address"),
		zap.String("method", "InsertOrderSnapshot"),
		zap.String("order_id", orderID.String()),
	)

	const q = `
		INSERT INTO order_shipping_addresses (
			id, order_id, name, phone,
			address_line1, address_line2,
			city, state, postal_code, country
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (order_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, q,
		uuid.New(), orderID, addr.Name, addr.Phone,
		addr.Line1, addr.Line2,
		addr.City, addr.State, addr.PostalCode, addr.Country,
	)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return err
	}

	return nil
}

func (r *repository) GetOrderSnapshot(
	ctx context.Context,
	orderID uuid.UUID,
) (*Address, error) {

	const q = `
		SELECT name, phone, address_line1, address_line2,
		       city, state, postal_code, country
		FROM order_shipping_addresses
		WHERE order_id = $1
	`

	var a Address
	err := r.db.QueryRowContext(ctx, q, orderID).Scan(
		&a.Name, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.PostalCode, &a.Country,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

func (r *repository) UpsertUserDefault(
	ctx context.Context,
	userID string,
	addr *Address,
) error {

	const q = `
		INSERT INTO user_addresses (
			id, user_id, name, phone,
			address_line1, address_line2,
			city, state, postal_code, country, is_default
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,true)
		ON CONFLICT (user_id) WHERE is_default
		DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			country = EXCLUDED.country
	`

	_, err := r.db.ExecContext(ctx, q,
		uuid.New(), userID, addr.Name, addr.Phone,
		addr.Line1, addr.Line2,
		addr.City, addr.State, addr.PostalCode, addr.Country,
	)
	return err
}
