package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"relove-be/internal/address"
	"relove-be/internal/catalog"
	"relove-be/internal/logger"
	"relove-be/internal/payment"
	"relove-be/internal/pricing"
	"relove-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	// CreateIntent is the idempotent checkout entry point: it prices the
	// cart server-side, creates the order row and a gateway payment
	// intent, and on replay returns the original result instead of
	// double-charging.
	CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error)
	UpdateFulfillment(ctx context.Context, input UpdateFulfillmentInput) (*QuoteResult, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*ConfirmResult, error)
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
	GetOrder(ctx context.Context, input GetOrderInput) (*Order, error)
}

// TokenIssuer mints and checks guest order-access tokens.
type TokenIssuer interface {
	Issue(orderID uuid.UUID) (string, error)
	Verify(token string) (uuid.UUID, error)
}

// RefundNotifier tells the buyer a refund was issued. Best effort.
type RefundNotifier interface {
	OrderRefunded(ctx context.Context, o *Order, amountCents int64) error
}

type CreateIntentInput struct {
	Items           []pricing.CartItem
	Fulfillment     pricing.Fulfillment
	IdempotencyKey  string
	ShippingAddress *address.Address
	UserID          *string
	UserEmail       string
	GuestEmail      *string
}

type CreateIntentResult struct {
	OrderID         uuid.UUID
	Status          Status
	AlreadyPaid     bool
	PaymentIntentID string
	ClientSecret    string
	AccessToken     string
	SubtotalCents   int64
	ShippingCents   int64
	TaxCents        int64
	TotalCents      int64
	Fulfillment     pricing.Fulfillment
}

type UpdateFulfillmentInput struct {
	OrderID         uuid.UUID
	UserID          *string
	OrderToken      string
	Fulfillment     pricing.Fulfillment
	ShippingAddress *address.Address
}

type QuoteResult struct {
	OrderID       uuid.UUID
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
	Fulfillment   pricing.Fulfillment
}

type ConfirmPaymentInput struct {
	OrderID         uuid.UUID
	PaymentIntentID string
	UserID          *string
	UserEmail       string
	OrderToken      string
	Fulfillment     string
	ShippingAddress *address.Address
}

type ConfirmResult struct {
	OrderID     uuid.UUID
	Success     bool
	Processing  bool
	AlreadyPaid bool
	Diagnostics []Diagnostic
}

type RefundInput struct {
	OrderID uuid.UUID
	Request RefundRequest
}

type RefundResult struct {
	RefundID         string
	Status           string
	AmountCents      int64
	OrderRefundCents int64
	OrderStatus      Status
	Warning          string
}

type GetOrderInput struct {
	OrderID    uuid.UUID
	UserID     *string
	OrderToken string
}

type service struct {
	repo           Repository
	catalog        catalog.Repository
	pricer         pricing.Resolver
	gateway        payment.Gateway
	tokens         TokenIssuer
	tasks          []PostPaidTask
	refundNotifier RefundNotifier
}

func NewService(
	repo Repository,
	catalogRepo catalog.Repository,
	pricer pricing.Resolver,
	gateway payment.Gateway,
	tokens TokenIssuer,
	tasks []PostPaidTask,
	refundNotifier RefundNotifier,
) Service {
	return &service{
		repo:           repo,
		catalog:        catalogRepo,
		pricer:         pricer,
		gateway:        gateway,
		tokens:         tokens,
		tasks:          tasks,
		refundNotifier: refundNotifier,
	}
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateIntent"),
		zap.String("idempotency_key", input.IdempotencyKey),
	)

	if input.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}
	if input.UserID == nil && (input.GuestEmail == nil || *input.GuestEmail == "") {
		return nil, ErrGuestEmailRequired
	}

	cartHash := cartHashFromCart(input.Items, input.Fulfillment)

	// Two passes at most: lose the insert race once, resume the winner.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.GetByIdempotencyKey(ctx, "", input.IdempotencyKey)
		if err != nil {
			log.Error("failed to look up idempotency key", zap.Error(err))
			return nil, err
		}
		if existing != nil {
			return s.resumeOrder(ctx, existing, cartHash, input)
		}

		quote, items, err := s.pricer.Resolve(ctx, pricing.ResolveInput{
			Items:           input.Items,
			Fulfillment:     input.Fulfillment,
			ShippingAddress: input.ShippingAddress,
		})
		if err != nil {
			return nil, err
		}

		o := &Order{
			ID:               uuid.New(),
			TenantID:         quote.TenantID,
			UserID:           input.UserID,
			GuestEmail:       input.GuestEmail,
			Currency:         "usd",
			Fulfillment:      input.Fulfillment,
			Status:           StatusPending,
			SubtotalCents:    quote.SubtotalCents,
			ShippingCents:    quote.ShippingCents,
			TaxCents:         quote.TaxCents,
			TotalCents:       quote.TotalCents,
			IdempotencyKey:   input.IdempotencyKey,
			CartHash:         cartHash,
			ExpiresAt:        time.Now().Add(TTL),
			TaxCalculationID: quote.TaxCalculationID,
			CustomerState:    quote.DestinationState,
		}
		for _, item := range items {
			o.Items = append(o.Items, LineItem{
				ID:             uuid.New(),
				OrderID:        o.ID,
				ProductID:      item.ProductID,
				VariantID:      item.VariantID,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
				UnitCostCents:  item.UnitCostCents,
				LineTotalCents: item.LineTotalCents,
			})
		}

		if err := s.repo.CreatePending(ctx, o); err != nil {
			if errors.Is(err, ErrIdempotencyConflict) {
				log.Info("lost order create race, resuming winner")
				continue
			}
			log.Error("failed to create pending order", zap.Error(err))
			return nil, err
		}

		log.Info("pending order created",
			zap.String("order_id", o.ID.String()),
			zap.Int64("total_cents", o.TotalCents),
		)
		return s.attachIntent(ctx, o, quote.StripeAccountID, input)
	}

	return nil, ErrIdempotencyConflict
}

// resumeOrder replays an intake against an order that already exists for
// the idempotency key.
func (s *service) resumeOrder(ctx context.Context, o *Order, cartHash string, input CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateIntent"),
		zap.String("order_id", o.ID.String()),
	)

	if o.Expired(time.Now()) {
		return nil, ErrIdempotencyKeyExpired
	}
	if o.CartHash != cartHash {
		return nil, ErrCartMismatch
	}
	if o.Status == StatusPaid {
		result := s.resultFor(o, "", "")
		result.AlreadyPaid = true
		return result, nil
	}

	if o.UserID == nil && o.GuestEmail == nil && input.GuestEmail != nil {
		if err := s.repo.UpdateGuestEmail(ctx, o.ID, *input.GuestEmail); err != nil {
			log.Warn("failed to backfill guest email", zap.Error(err))
		} else {
			o.GuestEmail = input.GuestEmail
		}
	}

	if o.PaymentIntentID != nil {
		intent, err := s.gateway.RetrieveIntent(ctx, *o.PaymentIntentID)
		if err != nil {
			log.Error("failed to retrieve payment intent", zap.Error(err))
			return nil, err
		}
		switch intent.Status {
		case payment.IntentSucceeded:
			result := s.resultFor(o, intent.ID, "")
			result.AlreadyPaid = true
			result.Status = StatusPaid
			return result, nil
		case payment.IntentCanceled:
			return nil, ErrPaymentIntentCanceled
		}
		log.Info("reusing existing payment intent", zap.String("payment_intent_id", intent.ID))
		return s.resultFor(o, intent.ID, intent.ClientSecret), nil
	}

	// Order row exists but a prior gateway call failed before an intent
	// was linked. Finish the job.
	stripeAccountID, err := s.catalog.GetStripeAccountForTenant(ctx, o.TenantID)
	if err != nil {
		return nil, err
	}
	return s.attachIntent(ctx, o, stripeAccountID, input)
}

func (s *service) attachIntent(ctx context.Context, o *Order, stripeAccountID string, input CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateIntent"),
		zap.String("order_id", o.ID.String()),
	)

	receiptEmail := input.UserEmail
	if receiptEmail == "" && o.GuestEmail != nil {
		receiptEmail = *o.GuestEmail
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentInput{
		AmountCents:         o.TotalCents,
		Currency:            o.Currency,
		ReceiptEmail:        receiptEmail,
		TransferDestination: stripeAccountID,
		Metadata:            s.intentMetadata(o),
		IdempotencyKey:      o.IdempotencyKey,
	})
	if err != nil {
		// Order stays pending and intent-less; a replay of the same key
		// lands back here.
		log.Error("failed to create payment intent", zap.Error(err))
		return nil, err
	}

	if err := s.repo.LinkPaymentIntent(ctx, o.ID, intent.ID); err != nil {
		log.Error("failed to link payment intent", zap.Error(err))
		return nil, err
	}

	log.Info("payment intent created", zap.String("payment_intent_id", intent.ID))
	return s.resultFor(o, intent.ID, intent.ClientSecret), nil
}

func (s *service) intentMetadata(o *Order) map[string]string {
	metadata := map[string]string{
		"order_id":    o.ID.String(),
		"tenant_id":   o.TenantID,
		"cart_hash":   o.CartHash,
		"fulfillment": string(o.Fulfillment),
	}
	if o.TaxCalculationID != nil {
		metadata["tax_calculation_id"] = *o.TaxCalculationID
	}
	return metadata
}

func (s *service) resultFor(o *Order, intentID, clientSecret string) *CreateIntentResult {
	result := &CreateIntentResult{
		OrderID:         o.ID,
		Status:          o.Status,
		PaymentIntentID: intentID,
		ClientSecret:    clientSecret,
		SubtotalCents:   o.SubtotalCents,
		ShippingCents:   o.ShippingCents,
		TaxCents:        o.TaxCents,
		TotalCents:      o.TotalCents,
		Fulfillment:     o.Fulfillment,
	}
	if o.UserID == nil && s.tokens != nil {
		if token, err := s.tokens.Issue(o.ID); err == nil {
			result.AccessToken = token
		}
	}
	return result
}

func (s *service) UpdateFulfillment(ctx context.Context, input UpdateFulfillmentInput) (*QuoteResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateFulfillment"),
		zap.String("order_id", input.OrderID.String()),
		zap.String("fulfillment", string(input.Fulfillment)),
	)

	o, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(o, input.UserID, input.OrderToken) {
		return nil, ErrUnauthorized
	}
	if o.Status != StatusPending {
		return nil, ErrOrderNotPending
	}
	if o.PaymentIntentID == nil {
		return nil, ErrMissingPaymentIntent
	}

	intent, err := s.gateway.RetrieveIntent(ctx, *o.PaymentIntentID)
	if err != nil {
		log.Error("failed to retrieve payment intent", zap.Error(err))
		return nil, err
	}
	switch intent.Status {
	case payment.IntentSucceeded:
		return nil, ErrOrderAlreadyPaid
	case payment.IntentCanceled:
		return nil, ErrPaymentIntentCanceled
	}

	locked := make([]pricing.LockedItem, 0, len(o.Items))
	for _, item := range o.Items {
		locked = append(locked, pricing.LockedItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			UnitCostCents:  item.UnitCostCents,
		})
	}

	quote, err := s.pricer.Reprice(ctx, pricing.RepriceInput{
		TenantID:        o.TenantID,
		Items:           locked,
		Fulfillment:     input.Fulfillment,
		ShippingAddress: input.ShippingAddress,
	})
	if err != nil {
		return nil, err
	}

	newHash := cartHashFromLines(o.Items, input.Fulfillment)

	// Gateway first: if the amount update fails the order keeps its old
	// consistent quote, and the client retries. The reverse order could
	// charge the stale amount against the new stored total.
	metadata := map[string]string{
		"cart_hash":   newHash,
		"fulfillment": string(input.Fulfillment),
	}
	if quote.TaxCalculationID != nil {
		metadata["tax_calculation_id"] = *quote.TaxCalculationID
	}
	if err := s.gateway.UpdateIntentAmount(ctx, *o.PaymentIntentID, quote.TotalCents, metadata); err != nil {
		log.Error("failed to update payment intent amount", zap.Error(err))
		return nil, err
	}

	err = s.repo.UpdatePricing(ctx, o.ID, PricingUpdate{
		SubtotalCents:    quote.SubtotalCents,
		ShippingCents:    quote.ShippingCents,
		TaxCents:         quote.TaxCents,
		TotalCents:       quote.TotalCents,
		Fulfillment:      string(input.Fulfillment),
		CartHash:         newHash,
		TaxCalculationID: quote.TaxCalculationID,
		DestinationState: quote.DestinationState,
	})
	if err != nil {
		log.Error("failed to persist repriced order", zap.Error(err))
		return nil, err
	}

	log.Info("order repriced",
		zap.Int64("shipping_cents", quote.ShippingCents),
		zap.Int64("tax_cents", quote.TaxCents),
		zap.Int64("total_cents", quote.TotalCents),
	)

	return &QuoteResult{
		OrderID:       o.ID,
		SubtotalCents: quote.SubtotalCents,
		ShippingCents: quote.ShippingCents,
		TaxCents:      quote.TaxCents,
		TotalCents:    quote.TotalCents,
		Fulfillment:   input.Fulfillment,
	}, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*ConfirmResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmPayment"),
		zap.String("order_id", input.OrderID.String()),
	)

	o, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(o, input.UserID, input.OrderToken) {
		return nil, ErrUnauthorized
	}
	if input.Fulfillment != "" && pricing.NormalizeFulfillment(input.Fulfillment) != o.Fulfillment {
		return nil, ErrFulfillmentMismatch
	}

	intent, err := s.gateway.RetrieveIntent(ctx, input.PaymentIntentID)
	if err != nil {
		log.Error("failed to retrieve payment intent", zap.Error(err))
		return nil, err
	}

	if id := intent.Metadata["order_id"]; id != "" && id != o.ID.String() {
		log.Warn("payment intent belongs to a different order",
			zap.String("payment_intent_id", intent.ID),
			zap.String("intent_order_id", id),
		)
		return nil, ErrPaymentIntentMismatch
	}
	if o.PaymentIntentID != nil && *o.PaymentIntentID != intent.ID {
		return nil, ErrPaymentIntentConflict
	}

	// Replayed confirmation of a settled order: succeed, touch nothing.
	if o.Status == StatusPaid {
		return &ConfirmResult{OrderID: o.ID, Success: true, AlreadyPaid: true}, nil
	}
	if o.Status != StatusPending {
		return nil, ErrOrderNotPending
	}

	if intent.Status == payment.IntentProcessing {
		return &ConfirmResult{OrderID: o.ID, Processing: true}, nil
	}
	if intent.Status != payment.IntentSucceeded {
		return nil, ErrPaymentNotSucceeded
	}
	if intent.AmountCents != o.TotalCents || !strings.EqualFold(intent.Currency, o.Currency) {
		log.Warn("captured amount does not match order",
			zap.Int64("intent_amount_cents", intent.AmountCents),
			zap.Int64("order_total_cents", o.TotalCents),
			zap.String("intent_currency", intent.Currency),
		)
		return nil, ErrPaymentAmountMismatch
	}

	flipped, err := s.repo.MarkPaid(ctx, o.ID, intent.ID, o.Items)
	if err != nil {
		log.Error("failed to commit paid transition", zap.Error(err))
		return nil, err
	}
	if !flipped {
		return &ConfirmResult{OrderID: o.ID, Success: true, AlreadyPaid: true}, nil
	}

	o.Status = StatusPaid
	o.PaymentIntentID = &intent.ID

	receiptEmail := input.UserEmail
	if receiptEmail == "" && o.GuestEmail != nil {
		receiptEmail = *o.GuestEmail
	}

	diagnostics := runPostPaid(ctx, s.tasks, &PaidOrder{
		Order:           o,
		IntentID:        intent.ID,
		ReceiptEmail:    receiptEmail,
		ShippingAddress: input.ShippingAddress,
	})

	log.Info("order confirmed paid",
		zap.String("payment_intent_id", intent.ID),
		zap.Int("diagnostic_count", len(diagnostics)),
	)

	return &ConfirmResult{OrderID: o.ID, Success: true, Diagnostics: diagnostics}, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Refund"),
		zap.String("order_id", input.OrderID.String()),
		zap.String("refund_kind", string(input.Request.Kind)),
	)

	if err := input.Request.Validate(); err != nil {
		return nil, err
	}

	o, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusRefunded {
		return nil, ErrAlreadyRefunded
	}
	if !o.Refundable() {
		return nil, ErrOrderNotRefundable
	}
	if o.PaymentIntentID == nil {
		return nil, ErrMissingPaymentIntent
	}

	remaining := o.RemainingRefundableCents()
	if remaining <= 0 {
		return nil, ErrAlreadyRefunded
	}

	var amount int64
	var refundItems []LineItem

	switch input.Request.Kind {
	case RefundFull:
		amount = remaining

	case RefundProduct:
		byID := make(map[uuid.UUID]*LineItem, len(o.Items))
		for i := range o.Items {
			byID[o.Items[i].ID] = &o.Items[i]
		}
		seen := map[uuid.UUID]bool{}
		for _, itemID := range input.Request.ItemIDs {
			if seen[itemID] {
				continue
			}
			seen[itemID] = true
			item, ok := byID[itemID]
			if !ok {
				return nil, ErrRefundItemInvalid
			}
			if item.RefundedAt != nil {
				return nil, ErrItemAlreadyRefunded
			}
			amount += item.LineTotalCents
			refundItems = append(refundItems, *item)
		}

	case RefundCustom:
		amount = input.Request.AmountCents
	}

	if amount <= 0 {
		return nil, ErrInvalidRefundAmount
	}
	if amount > remaining {
		return nil, ErrRefundExceedsRemaining
	}

	result, err := s.gateway.Refund(ctx, payment.RefundInput{
		PaymentIntentID: *o.PaymentIntentID,
		AmountCents:     amount,
		Reason:          "requested_by_customer",
	})
	if err != nil {
		log.Error("gateway refund failed", zap.Error(err))
		return nil, err
	}

	newAmount, newStatus, err := s.repo.ApplyRefund(ctx, o.ID, result.AmountCents)
	if err != nil {
		// The money already moved. Surface loudly so the ledger gets
		// reconciled by hand.
		log.Error("refund issued but ledger update failed",
			zap.String("refund_id", result.ID),
			zap.Int64("amount_cents", result.AmountCents),
			zap.Error(err),
		)
		return nil, err
	}

	var warning string
	if input.Request.Kind == RefundProduct {
		itemIDs := make([]uuid.UUID, 0, len(refundItems))
		for _, item := range refundItems {
			itemIDs = append(itemIDs, item.ID)
		}
		if err := s.repo.MarkItemsRefunded(ctx, o.ID, itemIDs); err != nil {
			log.Warn("failed to mark items refunded", zap.Error(err))
			warning = "refund issued but item bookkeeping failed"
		} else if err := s.repo.RestockVariants(ctx, refundItems); err != nil {
			log.Warn("failed to restock refunded variants", zap.Error(err))
			warning = "refund issued but restock failed"
		}
	}

	if s.refundNotifier != nil {
		if err := s.refundNotifier.OrderRefunded(ctx, o, result.AmountCents); err != nil {
			log.Warn("failed to send refund notification", zap.Error(err))
		}
	}

	log.Info("refund issued",
		zap.String("refund_id", result.ID),
		zap.Int64("amount_cents", result.AmountCents),
		zap.String("order_status", string(newStatus)),
	)

	return &RefundResult{
		RefundID:         result.ID,
		Status:           result.Status,
		AmountCents:      result.AmountCents,
		OrderRefundCents: newAmount,
		OrderStatus:      newStatus,
		Warning:          warning,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, input GetOrderInput) (*Order, error) {
	o, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(o, input.UserID, input.OrderToken) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

// canAccess: owners see their own orders; guest orders are reachable
// only with the access token minted at intake.
func (s *service) canAccess(o *Order, userID *string, token string) bool {
	if o.UserID != nil {
		return userID != nil && *userID == *o.UserID
	}
	if token != "" && s.tokens != nil {
		if id, err := s.tokens.Verify(token); err == nil && id == o.ID {
			return true
		}
	}
	return false
}

func cartHashFromCart(items []pricing.CartItem, fulfillment pricing.Fulfillment) string {
	entries := make([]utils.CartEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, utils.CartEntry{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return utils.CartHash(entries, string(fulfillment))
}

func cartHashFromLines(items []LineItem, fulfillment pricing.Fulfillment) string {
	entries := make([]utils.CartEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, utils.CartEntry{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return utils.CartHash(entries, string(fulfillment))
}
