package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
)

// MemoryStore is a combined in-memory store for products, orders and users
type MemoryStore struct {
	mu       sync.RWMutex
	products map[primitive.ObjectID]domain.Product
	orders   map[primitive.ObjectID]domain.Order
	users    map[primitive.ObjectID]domain.User
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[primitive.ObjectID]domain.Product),
		orders:   make(map[primitive.ObjectID]domain.Order),
		users:    make(map[primitive.ObjectID]domain.User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSKU(p.SKU, primitive.NilObjectID); err != nil {
		return err
	}
	p.ID = primitive.NewObjectID()
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = cloneProduct(*p)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (m *MemoryStore) GetByLegacyID(ctx context.Context, legacyID int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.products {
		if legacyID != 0 && p.LegacyID == legacyID {
			cp := cloneProduct(p)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	next := cloneProduct(old)
	for _, f := range fields {
		switch f {
		case "sku":
			if err := m.checkSKU(p.SKU, p.ID); err != nil {
				return err
			}
			next.SKU = p.SKU
		case "title":
			next.Title = p.Title
		case "description":
			next.Description = p.Description
		case "price":
			next.Price = p.Price
		case "image":
			next.Image = p.Image
		case "images":
			next.Images = append([]string(nil), p.Images...)
		case "category":
			next.Category = p.Category
		case "subcategory":
			next.Subcategory = p.Subcategory
		case "brand":
			next.Brand = p.Brand
		case "tags":
			next.Tags = append([]string(nil), p.Tags...)
		case "stock":
			next.Stock = p.Stock
		case "lowStockThreshold":
			next.LowStockThreshold = p.LowStockThreshold
		case "rating":
			next.Rating = p.Rating
		case "isActive":
			next.IsActive = p.IsActive
		case "isFeatured":
			next.IsFeatured = p.IsFeatured
		default:
			return fmt.Errorf("unknown product field %q", f)
		}
	}
	next.UpdatedAt = m.now()
	m.products[p.ID] = next
	*p = cloneProduct(next)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, q ProductQuery) ([]domain.Product, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, p := range m.products {
		if matchesQuery(p, q) {
			out = append(out, cloneProduct(p))
		}
	}
	sortProducts(out, q.SortBy, q.SortDesc)

	total := int64(len(out))
	if q.Skip > 0 {
		if q.Skip >= total {
			return []domain.Product{}, total, nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (m *MemoryStore) Categories(ctx context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[domain.Category]struct{})
	out := make([]domain.Category, 0)
	for _, p := range m.products {
		if !p.IsActive {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.products)), nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

func (m *MemoryStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

// checkSKU must be called with the write lock held
func (m *MemoryStore) checkSKU(sku string, self primitive.ObjectID) error {
	if sku == "" {
		return nil
	}
	for id, p := range m.products {
		if id != self && strings.EqualFold(p.SKU, sku) {
			return &DuplicateError{Field: "sku"}
		}
	}
	return nil
}

func matchesQuery(p domain.Product, q ProductQuery) bool {
	if q.ActiveOnly && !p.IsActive {
		return false
	}
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if q.Subcategory != "" && p.Subcategory != q.Subcategory {
		return false
	}
	if q.Brand != "" && !containsIgnoreCase(p.Brand, q.Brand) {
		return false
	}
	if q.Featured && !p.IsFeatured {
		return false
	}
	if q.InStock && p.Stock <= 0 {
		return false
	}
	if q.MinPrice != nil && p.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && p.Price > *q.MaxPrice {
		return false
	}
	if q.Search != "" {
		hit := containsIgnoreCase(p.Title, q.Search) ||
			containsIgnoreCase(p.Description, q.Search) ||
			containsIgnoreCase(p.Brand, q.Search)
		for _, t := range p.Tags {
			hit = hit || containsIgnoreCase(t, q.Search)
		}
		if !hit {
			return false
		}
	}
	return true
}

func sortProducts(ps []domain.Product, by string, desc bool) {
	less := func(a, b domain.Product) bool {
		switch by {
		case SortPrice:
			return a.Price < b.Price
		case SortTitle:
			return a.Title < b.Title
		case SortStock:
			return a.Stock < b.Stock
		case SortRating:
			return a.Rating.Average < b.Rating.Average
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if less(a, b) {
			return !desc
		}
		if less(b, a) {
			return desc
		}
		// ObjectIDs grow with creation time; keeps ties deterministic
		if desc {
			return a.ID.Hex() > b.ID.Hex()
		}
		return a.ID.Hex() < b.ID.Hex()
	})
}

func cloneProduct(p domain.Product) domain.Product {
	p.Images = append([]string(nil), p.Images...)
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

// MemoryOrders implements OrderRepository on top of MemoryStore
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.mu.Lock()
	defer mo.store.mu.Unlock()
	for _, existing := range mo.store.orders {
		if existing.OrderNumber == o.OrderNumber {
			return &DuplicateError{Field: "orderNumber"}
		}
	}
	o.ID = primitive.NewObjectID()
	o.CreatedAt = mo.store.now()
	o.UpdatedAt = o.CreatedAt
	mo.store.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Order, error) {
	mo.store.mu.RLock()
	defer mo.store.mu.RUnlock()
	o, ok := mo.store.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) AttachIntent(ctx context.Context, id primitive.ObjectID, intentID string) (*domain.Order, error) {
	return mo.modify(id, func(o *domain.Order) error {
		if o.Payment.Status != domain.PaymentStatusPending {
			return ErrStaleState
		}
		o.Payment.PaymentIntentID = intentID
		return nil
	})
}

func (mo *MemoryOrders) UpdateFulfillment(ctx context.Context, id primitive.ObjectID, upd FulfillmentUpdate) (*domain.Order, error) {
	return mo.modify(id, func(o *domain.Order) error {
		if upd.Status != nil {
			o.Status = *upd.Status
		}
		if upd.TrackingNumber != nil {
			o.TrackingNumber = *upd.TrackingNumber
		}
		if upd.Notes != nil {
			o.Notes = *upd.Notes
		}
		return nil
	})
}

// modify applies fn to the stored order under the write lock
func (mo *MemoryOrders) modify(id primitive.ObjectID, fn func(o *domain.Order) error) (*domain.Order, error) {
	mo.store.mu.Lock()
	defer mo.store.mu.Unlock()
	o, ok := mo.store.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = cloneOrder(o)
	if err := fn(&o); err != nil {
		return nil, err
	}
	o.UpdatedAt = mo.store.now()
	mo.store.orders[id] = o
	cp := cloneOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Order, error) {
	mo.store.mu.RLock()
	defer mo.store.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range mo.store.orders {
		if o.OwnedBy(userID) {
			out = append(out, cloneOrder(o))
		}
	}
	sortOrders(out, true)
	return out, nil
}

func (mo *MemoryOrders) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	mo.store.mu.RLock()
	defer mo.store.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range mo.store.orders {
		if o.Status == domain.OrderStatusPending &&
			o.Payment.Status == domain.PaymentStatusPending &&
			o.CreatedAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
	}
	sortOrders(out, false)
	return out, nil
}

func (mo *MemoryOrders) TransitionPayment(ctx context.Context, id primitive.ObjectID, from, to domain.PaymentStatus, status domain.OrderStatus) (*domain.Order, error) {
	return mo.modify(id, func(o *domain.Order) error {
		if o.Payment.Status != from {
			return ErrStaleState
		}
		o.Payment.Status = to
		o.Status = status
		return nil
	})
}

func sortOrders(os []domain.Order, newestFirst bool) {
	sort.Slice(os, func(i, j int) bool {
		a, b := os[i], os[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt) == newestFirst
		}
		return (a.ID.Hex() > b.ID.Hex()) == newestFirst
	})
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.UserID != nil {
		uid := *o.UserID
		o.UserID = &uid
	}
	return o
}

// MemoryUsers implements UserRepository on top of MemoryStore
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

func (mu *MemoryUsers) Create(ctx context.Context, u *domain.User) error {
	mu.store.mu.Lock()
	defer mu.store.mu.Unlock()
	if err := mu.checkUnique(u); err != nil {
		return err
	}
	u.ID = primitive.NewObjectID()
	u.CreatedAt = mu.store.now()
	u.UpdatedAt = u.CreatedAt
	mu.store.users[u.ID] = cloneUser(*u)
	return nil
}

func (mu *MemoryUsers) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	mu.store.mu.RLock()
	defer mu.store.mu.RUnlock()
	u, ok := mu.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneUser(u)
	return &cp, nil
}

func (mu *MemoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	mu.store.mu.RLock()
	defer mu.store.mu.RUnlock()
	for _, u := range mu.store.users {
		if strings.EqualFold(u.Email, email) {
			cp := cloneUser(u)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mu *MemoryUsers) Update(ctx context.Context, u *domain.User) error {
	mu.store.mu.Lock()
	defer mu.store.mu.Unlock()
	old, ok := mu.store.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if err := mu.checkUnique(u); err != nil {
		return err
	}
	u.CreatedAt = old.CreatedAt
	u.UpdatedAt = mu.store.now()
	mu.store.users[u.ID] = cloneUser(*u)
	return nil
}

func (mu *MemoryUsers) checkUnique(u *domain.User) error {
	for id, existing := range mu.store.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return &DuplicateError{Field: "email"}
		}
		if strings.EqualFold(existing.Username, u.Username) {
			return &DuplicateError{Field: "username"}
		}
	}
	return nil
}

func cloneUser(u domain.User) domain.User {
	if u.ShippingAddress != nil {
		a := *u.ShippingAddress
		u.ShippingAddress = &a
	}
	return u
}
