package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"
)

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberSuffix   = 6
	orderNumberAttempts = 3
)

// OrderService реализует логику заказов: оформление, оплата, выдача, истечение
type OrderService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	gateway  payment.Gateway
	currency string
	now      func() time.Time
	suffix   func() string
}

func NewOrderService(products repository.ProductRepository, orders repository.OrderRepository, gateway payment.Gateway, currency string) (*OrderService, error) {
	gen, err := nanoid.CustomASCII(orderNumberAlphabet, orderNumberSuffix)
	if err != nil {
		return nil, fmt.Errorf("order number generator: %w", err)
	}
	if currency == "" {
		currency = "usd"
	}
	return &OrderService{
		products: products,
		orders:   orders,
		gateway:  gateway,
		currency: strings.ToLower(currency),
		now:      time.Now,
		suffix:   gen,
	}, nil
}

// ProductRef identifies a product by ObjectID hex or by legacy numeric id.
// Old clients send the numeric id as a JSON number.
type ProductRef string

func (r *ProductRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ProductRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("productId must be a string or number: %w", err)
	}
	*r = ProductRef(n.String())
	return nil
}

type OrderItemInput struct {
	ProductID ProductRef `json:"productId" validate:"required"`
	Quantity  int64      `json:"quantity" validate:"gte=1"`
}

// PricingInput carries the client-computed fees; subtotal and total are always recomputed
type PricingInput struct {
	Shipping float64 `json:"shipping" validate:"gte=0"`
	Tax      float64 `json:"tax" validate:"gte=0"`
}

type PlaceOrderInput struct {
	CustomerInfo    domain.CustomerInfo `json:"customerInfo"`
	ShippingAddress domain.Address      `json:"shippingAddress"`
	BillingAddress  domain.Address      `json:"billingAddress"`
	Items           []OrderItemInput    `json:"items" validate:"required,min=1,dive"`
	Pricing         PricingInput        `json:"pricing"`
	PaymentMethod   string              `json:"paymentMethod"`
}

func (in PlaceOrderInput) validate() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	var missing []string
	a := in.ShippingAddress
	for name, v := range map[string]string{"street": a.Street, "city": a.City, "zipCode": a.ZipCode, "country": a.Country} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, "shippingAddress."+name+" is required")
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(missing, "; "))
	}
	return nil
}

// PlaceOrder проверяет корзину по каталогу, считает стоимость и сохраняет заказ.
// Stock is only checked here; it is taken at payment confirmation.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput, userID *primitive.ObjectID) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	wanted := make(map[primitive.ObjectID]int64)
	subtotal := decimal.Zero
	for _, it := range in.Items {
		p, err := s.resolveProduct(ctx, string(it.ProductID))
		if err != nil {
			return nil, err
		}
		wanted[p.ID] += it.Quantity
		if p.Stock < wanted[p.ID] {
			return nil, fmt.Errorf("%w: insufficient stock for %s. Available: %d", ErrNotEnoughStock, p.Title, p.Stock)
		}
		subtotal = subtotal.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(it.Quantity)))
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Title,
			Price:     p.Price,
			Quantity:  it.Quantity,
			Image:     p.Image,
		})
	}

	shipping := decimal.NewFromFloat(in.Pricing.Shipping)
	tax := decimal.NewFromFloat(in.Pricing.Tax)
	total := subtotal.Add(shipping).Add(tax)

	billing := in.BillingAddress
	if billing.IsBlank() {
		billing = in.ShippingAddress
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = domain.DefaultPaymentMethod
	}
	ci := in.CustomerInfo
	ci.Email = strings.ToLower(strings.TrimSpace(ci.Email))

	o := domain.Order{
		UserID:          userID,
		CustomerInfo:    ci,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  billing,
		Items:           items,
		Pricing: domain.Pricing{
			Subtotal: subtotal.InexactFloat64(),
			Shipping: shipping.InexactFloat64(),
			Tax:      tax.InexactFloat64(),
			Total:    total.InexactFloat64(),
		},
		Payment: domain.Payment{Method: method, Status: domain.PaymentStatusPending},
		Status:  domain.OrderStatusPending,
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		o.OrderNumber = s.orderNumber()
		if err = s.orders.Create(ctx, &o); err == nil || !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderService) orderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", s.now().UnixMilli(), s.suffix())
}

// resolveProduct looks the reference up by ObjectID first, then by legacy id.
// Inactive products cannot be ordered and read as missing.
func (s *OrderService) resolveProduct(ctx context.Context, ref string) (*domain.Product, error) {
	ref = strings.TrimSpace(ref)
	var p *domain.Product
	err := repository.ErrNotFound
	if oid, perr := primitive.ObjectIDFromHex(ref); perr == nil {
		p, err = s.products.GetByID(ctx, oid)
	}
	if errors.Is(err, repository.ErrNotFound) {
		if legacy, perr := strconv.ParseInt(ref, 10, 64); perr == nil && legacy > 0 {
			p, err = s.products.GetByLegacyID(ctx, legacy)
		}
	}
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !p.IsActive) {
		return nil, fmt.Errorf("product with ID %s: %w", ref, repository.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// IntentResult is what the shopper's browser needs to complete the payment
type IntentResult struct {
	ClientSecret string             `json:"clientSecret"`
	OrderID      primitive.ObjectID `json:"orderId"`
}

// CreatePaymentIntent opens a gateway intent for the order total
func (s *OrderService) CreatePaymentIntent(ctx context.Context, orderID primitive.ObjectID) (*IntentResult, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, o.Payment.Status)
	}
	amount := payment.ToMinorUnits(o.Pricing.Total)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: order total must be positive", ErrInvalidInput)
	}
	// a repeated request hands back the intent the browser may already be paying
	if o.Payment.PaymentIntentID != "" {
		open, err := s.gateway.GetIntent(ctx, o.Payment.PaymentIntentID)
		switch {
		case err == nil && open.Status != payment.StatusCanceled && open.AmountMinor == amount:
			return &IntentResult{ClientSecret: open.ClientSecret, OrderID: o.ID}, nil
		case err != nil && !errors.Is(err, payment.ErrIntentNotFound):
			return nil, err
		}
	}
	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountMinor: amount,
		Currency:    s.currency,
		Metadata: map[string]string{
			"orderId":     o.ID.Hex(),
			"orderNumber": o.OrderNumber,
		},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.AttachIntent(ctx, o.ID, intent.ID); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			// the order expired while the intent was being created
			_ = s.gateway.CancelIntent(ctx, intent.ID)
			return nil, fmt.Errorf("%w: order is no longer awaiting payment", ErrInvalidState)
		}
		return nil, err
	}
	return &IntentResult{ClientSecret: intent.ClientSecret, OrderID: o.ID}, nil
}

// ConfirmPayment списывает запас и переводит заказ в processing после успешной оплаты
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID primitive.ObjectID, intentID string) (*domain.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, fmt.Errorf("%w: paymentIntentId is required", ErrInvalidInput)
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, o.Payment.Status)
	}
	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			return nil, fmt.Errorf("%w: payment intent does not belong to this order", ErrInvalidInput)
		}
		return nil, err
	}
	if !intentBelongs(intent, o) {
		return nil, fmt.Errorf("%w: payment intent does not belong to this order", ErrInvalidInput)
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentNotCompleted, intent.Status)
	}

	if err := s.takeStock(ctx, o.Items); err != nil {
		return nil, err
	}
	updated, err := s.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.OrderStatusProcessing)
	if err != nil {
		s.restoreStock(ctx, o.Items)
		if errors.Is(err, repository.ErrStaleState) {
			return nil, fmt.Errorf("%w: order is no longer awaiting payment", ErrInvalidState)
		}
		return nil, err
	}
	return updated, nil
}

// intentBelongs accepts the stored intent or any earlier one opened for the same order and amount
func intentBelongs(in *payment.Intent, o *domain.Order) bool {
	if in.ID == o.Payment.PaymentIntentID {
		return true
	}
	return in.Metadata["orderId"] == o.ID.Hex() && in.AmountMinor == payment.ToMinorUnits(o.Pricing.Total)
}

// takeStock decrements every line or none of them
func (s *OrderService) takeStock(ctx context.Context, items []domain.OrderItem) error {
	for i, it := range items {
		err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err == nil {
			continue
		}
		s.restoreStock(ctx, items[:i])
		if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s is no longer available in the requested quantity", ErrStockConflict, it.Name)
		}
		return err
	}
	return nil
}

func (s *OrderService) restoreStock(ctx context.Context, items []domain.OrderItem) {
	for _, it := range items {
		if err := s.products.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			slog.ErrorContext(ctx, "restore stock failed",
				"product", it.ProductID.Hex(), "quantity", it.Quantity, "err", err)
		}
	}
}

// ListMyOrders returns the user's orders, newest first
func (s *OrderService) ListMyOrders(ctx context.Context, userID primitive.ObjectID) ([]domain.Order, error) {
	if userID.IsZero() {
		return nil, ErrUnauthorized
	}
	return s.orders.ListByUser(ctx, userID)
}

// Viewer is the caller asking for an order; nil for anonymous requests
type Viewer struct {
	UserID primitive.ObjectID
	Role   domain.Role
}

// GetOrder returns an order to its owner or to an admin. Guest orders are admin-only.
func (s *OrderService) GetOrder(ctx context.Context, id primitive.ObjectID, viewer *Viewer) (*domain.Order, error) {
	if viewer == nil {
		return nil, ErrUnauthorized
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.Role != domain.RoleAdmin && !o.OwnedBy(viewer.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// StatusUpdate is an admin change to fulfilment fields
type StatusUpdate struct {
	Status         *domain.OrderStatus `json:"status"`
	TrackingNumber *string             `json:"trackingNumber"`
	Notes          *string             `json:"notes" validate:"omitempty,max=500"`
}

func (s *OrderService) UpdateStatus(ctx context.Context, id primitive.ObjectID, upd StatusUpdate) (*domain.Order, error) {
	if upd.Status == nil && upd.TrackingNumber == nil && upd.Notes == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	return s.orders.UpdateFulfillment(ctx, id, repository.FulfillmentUpdate{
		Status:         upd.Status,
		TrackingNumber: upd.TrackingNumber,
		Notes:          upd.Notes,
	})
}

// ExpireResult summarises one expiry pass
type ExpireResult struct {
	Expired int
	Skipped int
}

// ExpirePending cancels never-paid orders created before cutoff.
// Orders whose intent already succeeded or is still processing are left for confirmation.
func (s *OrderService) ExpirePending(ctx context.Context, cutoff time.Time) (ExpireResult, error) {
	var res ExpireResult
	orders, err := s.orders.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return res, err
	}
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if id := o.Payment.PaymentIntentID; id != "" {
			intent, err := s.gateway.GetIntent(ctx, id)
			switch {
			case err == nil && (intent.Status == payment.StatusSucceeded || intent.Status == payment.StatusProcessing):
				res.Skipped++
				continue
			case err != nil && !errors.Is(err, payment.ErrIntentNotFound):
				slog.WarnContext(ctx, "expiry: intent lookup failed", "order", o.OrderNumber, "err", err)
				res.Skipped++
				continue
			case err == nil && intent.Status != payment.StatusCanceled:
				if err := s.gateway.CancelIntent(ctx, id); err != nil {
					slog.WarnContext(ctx, "expiry: cancel intent failed", "order", o.OrderNumber, "err", err)
				}
			}
		}
		_, err := s.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusExpired, domain.OrderStatusCancelled)
		switch {
		case err == nil:
			res.Expired++
		case errors.Is(err, repository.ErrStaleState), errors.Is(err, repository.ErrNotFound):
			res.Skipped++
		default:
			return res, err
		}
	}
	return res, nil
}
