package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique field collides
	ErrDuplicate = errors.New("duplicate key")
	// ErrInsufficientStock is returned by a conditional decrement that would go negative
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStaleState is returned when a conditional transition finds the order in another state
	ErrStaleState = errors.New("stale state")
)

// DuplicateError names the unique field that collided
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return "duplicate " + e.Field }

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Sortable product fields
const (
	SortCreatedAt = "createdAt"
	SortPrice     = "price"
	SortTitle     = "title"
	SortStock     = "stock"
	SortRating    = "rating"
)

// ProductQuery describes a catalog listing
type ProductQuery struct {
	ActiveOnly  bool
	Category    domain.Category
	Subcategory string
	Brand       string
	// Search matches title, description, brand and tags case-insensitively
	Search   string
	MinPrice *float64
	MaxPrice *float64
	Featured bool
	InStock  bool
	SortBy   string
	SortDesc bool
	Skip     int64
	// Limit <= 0 means no limit
	Limit int64
}

// ProductFields are the product fields an update may write
var ProductFields = []string{
	"sku", "title", "description", "price", "image", "images", "category", "subcategory",
	"brand", "tags", "stock", "lowStockThreshold", "rating", "isActive", "isFeatured",
}

// ProductRepository persists catalog items
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	GetByLegacyID(ctx context.Context, legacyID int64) (*domain.Product, error)
	// Update writes only the named fields of p and reloads p from storage.
	// Field names are the stored ones (ProductFields).
	Update(ctx context.Context, p *domain.Product, fields []string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, q ProductQuery) ([]domain.Product, int64, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Count(ctx context.Context) (int64, error)
	// DecrementStock subtracts qty only if the result stays >= 0
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error
	IncrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error
}

// OrderRepository persists orders
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Order, error)
	// AttachIntent records the gateway intent on an order whose payment is still pending
	AttachIntent(ctx context.Context, id primitive.ObjectID, intentID string) (*domain.Order, error)
	UpdateFulfillment(ctx context.Context, id primitive.ObjectID, upd FulfillmentUpdate) (*domain.Order, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Order, error)
	// ListPendingBefore returns unpaid pending orders created before cutoff
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
	// TransitionPayment moves an order whose payment is still in `from`; ErrStaleState otherwise
	TransitionPayment(ctx context.Context, id primitive.ObjectID, from, to domain.PaymentStatus, status domain.OrderStatus) (*domain.Order, error)
}

// FulfillmentUpdate carries the admin-editable order fields; nil leaves a field as is
type FulfillmentUpdate struct {
	Status         *domain.OrderStatus
	TrackingNumber *string
	Notes          *string
}

// UserRepository persists accounts
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
