package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

const (
	DefaultFeaturedLimit = 8
	DefaultSearchLimit   = 20
	MinSearchLength      = 2

	// attempts for auto-generated SKUs that lose a race with a concurrent create
	skuAttempts = 3
)

// ProductService инкапсулирует бизнес-логику вокруг каталога
type ProductService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// ProductPatch is a partial product update; nil fields are left untouched
type ProductPatch struct {
	SKU               *string          `json:"sku"`
	Title             *string          `json:"title"`
	Description       *string          `json:"description"`
	Price             *float64         `json:"price"`
	Image             *string          `json:"image"`
	Images            *[]string        `json:"images"`
	Category          *domain.Category `json:"category"`
	Subcategory       *string          `json:"subcategory"`
	Brand             *string          `json:"brand"`
	Tags              *[]string        `json:"tags"`
	Stock             *int64           `json:"stock"`
	LowStockThreshold *int64           `json:"lowStockThreshold"`
	Rating            *domain.Rating   `json:"rating"`
	IsActive          *bool            `json:"isActive"`
	IsFeatured        *bool            `json:"isFeatured"`
}

// Apply copies every set field onto p
func (pp ProductPatch) Apply(p *domain.Product) {
	if pp.SKU != nil {
		p.SKU = *pp.SKU
	}
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	if pp.Images != nil {
		p.Images = *pp.Images
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Subcategory != nil {
		p.Subcategory = *pp.Subcategory
	}
	if pp.Brand != nil {
		p.Brand = *pp.Brand
	}
	if pp.Tags != nil {
		p.Tags = *pp.Tags
	}
	if pp.Stock != nil {
		p.Stock = *pp.Stock
	}
	if pp.LowStockThreshold != nil {
		p.LowStockThreshold = *pp.LowStockThreshold
	}
	if pp.Rating != nil {
		p.Rating = *pp.Rating
	}
	if pp.IsActive != nil {
		p.IsActive = *pp.IsActive
	}
	if pp.IsFeatured != nil {
		p.IsFeatured = *pp.IsFeatured
	}
}

// Fields names the stored product fields the patch sets
func (pp ProductPatch) Fields() []string {
	set := []bool{
		pp.SKU != nil, pp.Title != nil, pp.Description != nil, pp.Price != nil,
		pp.Image != nil, pp.Images != nil, pp.Category != nil, pp.Subcategory != nil,
		pp.Brand != nil, pp.Tags != nil, pp.Stock != nil, pp.LowStockThreshold != nil,
		pp.Rating != nil, pp.IsActive != nil, pp.IsFeatured != nil,
	}
	var fields []string
	for i, ok := range set {
		if ok {
			fields = append(fields, repository.ProductFields[i])
		}
	}
	return fields
}

// NewProduct returns a product carrying the catalog defaults
func NewProduct() domain.Product {
	return domain.Product{
		Category:          domain.CategoryOther,
		LowStockThreshold: domain.DefaultLowStockThreshold,
		IsActive:          true,
	}
}

// Create валидирует товар и генерирует SKU, если он не задан
func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	normalizeProduct(&p)
	if err := checkProduct(p); err != nil {
		return nil, err
	}
	if p.SKU != "" {
		cp := p
		if err := s.repo.Create(ctx, &cp); err != nil {
			return nil, err
		}
		return &cp, nil
	}

	var lastErr error
	for attempt := 0; attempt < skuAttempts; attempt++ {
		count, err := s.repo.Count(ctx)
		if err != nil {
			return nil, err
		}
		cp := p
		cp.SKU = fmt.Sprintf("PRD%06d", count+1+int64(attempt))
		err = s.repo.Create(ctx, &cp)
		if err == nil {
			return &cp, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetByID accepts an ObjectID hex string or a legacy numeric id
func (s *ProductService) GetByID(ctx context.Context, ref string) (*domain.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if oid, err := primitive.ObjectIDFromHex(ref); err == nil {
		p, err := s.repo.GetByID(ctx, oid)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return p, err
		}
	}
	legacy, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		if primitive.IsValidObjectID(ref) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: invalid product id %q", ErrInvalidInput, ref)
	}
	return s.repo.GetByLegacyID(ctx, legacy)
}

func (s *ProductService) Update(ctx context.Context, id primitive.ObjectID, patch ProductPatch) (*domain.Product, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return p, nil
	}
	patch.Apply(p)
	normalizeProduct(p)
	if err := checkProduct(*p); err != nil {
		return nil, err
	}
	// only patched fields are written; stock moves by $inc at confirmation
	if err := s.repo.Update(ctx, p, fields); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, id primitive.ObjectID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.repo.Delete(ctx, id)
}

// ListParams are the catalog filters plus pagination
type ListParams struct {
	Filter repository.ProductQuery
	Page   int64
	// Limit <= 0 returns every match
	Limit int64
	All   bool
}

type Pagination struct {
	CurrentPage   int64 `json:"currentPage"`
	TotalPages    int64 `json:"totalPages"`
	TotalProducts int64 `json:"totalProducts"`
	HasNext       bool  `json:"hasNext"`
	HasPrev       bool  `json:"hasPrev"`
}

type ProductPage struct {
	Products   []domain.Product `json:"products"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

// List returns active products; pagination is reported unless All is set
func (s *ProductService) List(ctx context.Context, lp ListParams) (*ProductPage, error) {
	q := lp.Filter
	q.ActiveOnly = true
	if lp.Page < 1 {
		lp.Page = 1
	}
	if lp.Limit < 0 {
		lp.Limit = 0
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, fmt.Errorf("%w: minPrice is greater than maxPrice", ErrInvalidInput)
	}
	paged := !lp.All && lp.Limit > 0
	if paged {
		q.Skip = (lp.Page - 1) * lp.Limit
		q.Limit = lp.Limit
	} else {
		q.Skip, q.Limit = 0, 0
	}

	list, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	page := &ProductPage{Products: list}
	if lp.All {
		return page, nil
	}
	pg := &Pagination{
		CurrentPage:   lp.Page,
		TotalPages:    1,
		TotalProducts: total,
		HasPrev:       lp.Page > 1,
		HasNext:       q.Skip+int64(len(list)) < total,
	}
	if paged {
		pg.TotalPages = int64(math.Ceil(float64(total) / float64(lp.Limit)))
	}
	page.Pagination = pg
	return page, nil
}

// Featured returns up to limit active featured products
func (s *ProductService) Featured(ctx context.Context, limit int64) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	list, _, err := s.repo.List(ctx, repository.ProductQuery{ActiveOnly: true, Featured: true, Limit: limit})
	return list, err
}

// Search matches active products by title, description, brand or tag
func (s *ProductService) Search(ctx context.Context, term string, limit int64) ([]domain.Product, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < MinSearchLength {
		return nil, fmt.Errorf("%w: search query must be at least %d characters", ErrInvalidInput, MinSearchLength)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	list, _, err := s.repo.List(ctx, repository.ProductQuery{ActiveOnly: true, Search: term, Limit: limit})
	return list, err
}

// Categories lists the distinct categories of active products
func (s *ProductService) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.Categories(ctx)
}

func normalizeProduct(p *domain.Product) {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Category = domain.Category(strings.ToLower(strings.TrimSpace(string(p.Category))))
	p.Subcategory = strings.TrimSpace(p.Subcategory)
}

func checkProduct(p domain.Product) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, p.Category)
	}
	return nil
}
