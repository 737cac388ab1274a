// Package cart is the shopper-side cart: line items persisted after every change,
// with totals always derived from the lines.
package cart

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultStock is assumed when a product arrives without a stock figure
const DefaultStock = 99

// Product is what the shopper picked from the catalog
type Product struct {
	ID    string
	Name  string
	Price float64
	Image string
	Stock int64
}

// Line is one product in the cart. Stock is the snapshot taken when the line was added.
type Line struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Stock    int64   `json:"stock"`
	Quantity int64   `json:"quantity"`
}

// Snapshot is the persisted and displayed form of the cart
type Snapshot struct {
	Items         []Line  `json:"items"`
	TotalQuantity int64   `json:"totalQuantity"`
	TotalAmount   float64 `json:"totalAmount"`
}

type Cart struct {
	mu    sync.Mutex
	items []Line
	store Storage
}

// Open loads the cart from store. Unreadable data starts an empty cart.
func Open(store Storage) (*Cart, error) {
	c := &Cart{store: store}
	raw, err := store.Read()
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(raw) == 0 {
		return c, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		slog.Warn("discarding unreadable cart", "err", err)
		return c, nil
	}
	for _, l := range snap.Items {
		if l.ID == "" || l.Quantity <= 0 {
			continue
		}
		c.items = append(c.items, l)
	}
	return c, nil
}

func find(items []Line, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// lines returns a copy of the current lines for a mutation to work on
func (c *Cart) lines() []Line {
	return append([]Line(nil), c.items...)
}

// Add puts one unit of p in the cart
func (c *Cart) Add(p Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.lines()
	if i := find(next, p.ID); i >= 0 {
		next[i].Quantity++
		return c.commit(next)
	}
	stock := p.Stock
	if stock <= 0 {
		stock = DefaultStock
	}
	next = append(next, Line{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Stock:    stock,
		Quantity: 1,
	})
	return c.commit(next)
}

// RemoveOne takes one unit away, dropping the line at zero
func (c *Cart) RemoveOne(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.lines()
	i := find(next, id)
	if i < 0 {
		return nil
	}
	next[i].Quantity--
	if next[i].Quantity <= 0 {
		next = append(next[:i], next[i+1:]...)
	}
	return c.commit(next)
}

func (c *Cart) RemoveLine(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.lines()
	i := find(next, id)
	if i < 0 {
		return nil
	}
	return c.commit(append(next[:i], next[i+1:]...))
}

// SetQuantity accepts 0 < n <= the line's stock snapshot and reports whether it did
func (c *Cart) SetQuantity(id string, n int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.lines()
	i := find(next, id)
	if i < 0 || n <= 0 || n > next[i].Stock {
		return false, nil
	}
	next[i].Quantity = n
	if err := c.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

// Clear empties the cart and erases what was persisted
func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Remove(); err != nil {
		return err
	}
	c.items = nil
	return nil
}

func (c *Cart) Items() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.items...)
}

func (c *Cart) TotalQuantity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totalQuantity(c.items)
}

func (c *Cart) TotalAmount() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return subtotal(c.items).InexactFloat64()
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.items)
}

func snapshot(items []Line) Snapshot {
	return Snapshot{
		Items:         append([]Line{}, items...),
		TotalQuantity: totalQuantity(items),
		TotalAmount:   subtotal(items).InexactFloat64(),
	}
}

func totalQuantity(items []Line) int64 {
	var n int64
	for _, l := range items {
		n += l.Quantity
	}
	return n
}

func subtotal(items []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range items {
		sum = sum.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(l.Quantity)))
	}
	return sum
}

// commit persists next and only then makes it the cart's state; mu must be held
func (c *Cart) commit(next []Line) error {
	b, err := json.Marshal(snapshot(next))
	if err != nil {
		return err
	}
	if err := c.store.Write(b); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	c.items = next
	return nil
}
