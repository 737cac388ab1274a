package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category is the fixed set of catalog categories
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryAccessories Category = "accessories"
	CategoryHome        Category = "home"
	CategorySports      Category = "sports"
	CategoryBooks       Category = "books"
	CategoryOther       Category = "other"
)

var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryAccessories,
	CategoryHome,
	CategorySports,
	CategoryBooks,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Rating aggregated customer rating
type Rating struct {
	Average float64 `json:"average" bson:"average" validate:"gte=0,lte=5"`
	Count   int64   `json:"count" bson:"count" validate:"gte=0"`
}

// Product is a sellable catalog item
type Product struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	LegacyID          int64              `json:"legacyId,omitempty" bson:"id,omitempty"`
	SKU               string             `json:"sku,omitempty" bson:"sku,omitempty"`
	Title             string             `json:"title" bson:"title" validate:"required,max=100"`
	Description       string             `json:"description" bson:"description" validate:"max=1000"`
	Price             float64            `json:"price" bson:"price" validate:"gte=0"`
	Image             string             `json:"image" bson:"image"`
	Images            []string           `json:"images,omitempty" bson:"images,omitempty"`
	Category          Category           `json:"category" bson:"category" validate:"required"`
	Subcategory       string             `json:"subcategory,omitempty" bson:"subcategory,omitempty"`
	Brand             string             `json:"brand,omitempty" bson:"brand,omitempty"`
	Tags              []string           `json:"tags,omitempty" bson:"tags,omitempty"`
	Stock             int64              `json:"stock" bson:"stock" validate:"gte=0"`
	LowStockThreshold int64              `json:"lowStockThreshold" bson:"lowStockThreshold" validate:"gte=0"`
	Rating            Rating             `json:"rating" bson:"rating"`
	IsActive          bool               `json:"isActive" bson:"isActive"`
	IsFeatured        bool               `json:"isFeatured" bson:"isFeatured"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// OrderStatus fulfilment state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus payment sub-state of an order
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusExpired PaymentStatus = "expired"
)

const DefaultPaymentMethod = "stripe"

// DefaultLowStockThreshold applies when a product is created without one
const DefaultLowStockThreshold = 10

// DefaultCountry is the placeholder country checkout forms are prefilled with
const DefaultCountry = "US"

type CustomerInfo struct {
	FirstName string `json:"firstName" bson:"firstName" validate:"max=50"`
	LastName  string `json:"lastName" bson:"lastName" validate:"max=50"`
	Email     string `json:"email" bson:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty" bson:"phone,omitempty"`
}

type Address struct {
	Street  string `json:"street" bson:"street"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	ZipCode string `json:"zipCode" bson:"zipCode"`
	Country string `json:"country" bson:"country"`
}

// IsBlank reports whether every field is empty or holds the default country
func (a Address) IsBlank() bool {
	for _, v := range []string{a.Street, a.City, a.State, a.ZipCode, a.Country} {
		if v != "" && v != DefaultCountry {
			return false
		}
	}
	return true
}

// OrderItem is a snapshot of the product at the time the order was placed
type OrderItem struct {
	ProductID primitive.ObjectID `json:"product" bson:"product"`
	Name      string             `json:"name" bson:"name"`
	Price     float64            `json:"price" bson:"price"`
	Quantity  int64              `json:"quantity" bson:"quantity"`
	Image     string             `json:"image" bson:"image"`
}

type Pricing struct {
	Subtotal float64 `json:"subtotal" bson:"subtotal"`
	Shipping float64 `json:"shipping" bson:"shipping"`
	Tax      float64 `json:"tax" bson:"tax"`
	Total    float64 `json:"total" bson:"total"`
}

type Payment struct {
	Method          string        `json:"method" bson:"method"`
	Status          PaymentStatus `json:"status" bson:"status"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty" bson:"paymentIntentId,omitempty"`
}

// Order is a placed order
type Order struct {
	ID              primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	OrderNumber     string              `json:"orderNumber" bson:"orderNumber"`
	UserID          *primitive.ObjectID `json:"user" bson:"user"`
	CustomerInfo    CustomerInfo        `json:"customerInfo" bson:"customerInfo"`
	ShippingAddress Address             `json:"shippingAddress" bson:"shippingAddress"`
	BillingAddress  Address             `json:"billingAddress" bson:"billingAddress"`
	Items           []OrderItem         `json:"items" bson:"items"`
	Pricing         Pricing             `json:"pricing" bson:"pricing"`
	Payment         Payment             `json:"payment" bson:"payment"`
	Status          OrderStatus         `json:"status" bson:"status"`
	TrackingNumber  string              `json:"trackingNumber,omitempty" bson:"trackingNumber,omitempty"`
	Notes           string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// OwnedBy reports whether the order was placed by the given user
func (o *Order) OwnedBy(userID primitive.ObjectID) bool {
	return o.UserID != nil && *o.UserID == userID
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User is a registered shopper or administrator
type User struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username        string             `json:"username" bson:"username"`
	Email           string             `json:"email" bson:"email"`
	PasswordHash    string             `json:"-" bson:"password"`
	FirstName       string             `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName        string             `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Phone           string             `json:"phone,omitempty" bson:"phone,omitempty"`
	ShippingAddress *Address           `json:"shippingAddress,omitempty" bson:"shippingAddress,omitempty"`
	Role            Role               `json:"role" bson:"role"`
	IsActive        bool               `json:"isActive" bson:"isActive"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}
