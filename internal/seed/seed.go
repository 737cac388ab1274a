// Package seed loads a product list into the catalog
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"
)

// DefaultStock is used for records that carry no stock figure
const DefaultStock = 99

var categoryAliases = map[string]domain.Category{
	"bags": domain.CategoryAccessories,
}

// Record is one product in a seed file. JSON files parse as YAML, so one decoder reads both.
type Record struct {
	LegacyID    int64    `yaml:"id"`
	SKU         string   `yaml:"sku"`
	Title       string   `yaml:"title"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       float64  `yaml:"price"`
	Image       string   `yaml:"image"`
	Images      []string `yaml:"images"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Brand       string   `yaml:"brand"`
	Tags        []string `yaml:"tags"`
	Stock       *int64   `yaml:"stock"`
	Featured    bool     `yaml:"isFeatured"`
	Rating      struct {
		Rate    float64 `yaml:"rate"`
		Average float64 `yaml:"average"`
		Count   int64   `yaml:"count"`
	} `yaml:"rating"`
}

func Load(r io.Reader) ([]Record, error) {
	var recs []Record
	if err := yaml.NewDecoder(r).Decode(&recs); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return recs, nil
}

func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// NormalizeCategory maps a free-form category onto the catalog enum
func NormalizeCategory(s string) domain.Category {
	c := domain.Category(strings.ToLower(strings.TrimSpace(s)))
	if alias, ok := categoryAliases[string(c)]; ok {
		return alias
	}
	if !c.Valid() {
		return domain.CategoryOther
	}
	return c
}

// Product converts the record into a catalog product with defaults applied
func (r Record) Product() domain.Product {
	p := service.NewProduct()
	p.LegacyID = r.LegacyID
	p.SKU = r.SKU
	p.Title = r.Title
	if p.Title == "" {
		p.Title = r.Name
	}
	p.Description = r.Description
	p.Price = r.Price
	p.Image = r.Image
	p.Images = r.Images
	p.Category = NormalizeCategory(r.Category)
	p.Subcategory = r.Subcategory
	p.Brand = r.Brand
	p.Tags = r.Tags
	p.Stock = DefaultStock
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	p.IsFeatured = r.Featured
	p.Rating = domain.Rating{Average: r.Rating.Average, Count: r.Rating.Count}
	if p.Rating.Average == 0 {
		p.Rating.Average = r.Rating.Rate
	}
	return p
}

type Options struct {
	// Wipe deletes every existing product first
	Wipe bool
	// Admin, when set, is created or promoted to the admin role
	Admin *service.RegisterInput
}

type Summary struct {
	Deleted int
	Created int
	Skipped int
}

type Seeder struct {
	repo     repository.ProductRepository
	products *service.ProductService
	accounts *service.AuthService
}

func NewSeeder(repo repository.ProductRepository, products *service.ProductService, accounts *service.AuthService) *Seeder {
	return &Seeder{repo: repo, products: products, accounts: accounts}
}

// Run inserts recs through the product service; invalid records are skipped and logged
func (s *Seeder) Run(ctx context.Context, recs []Record, opts Options) (Summary, error) {
	var sum Summary
	if opts.Wipe {
		existing, _, err := s.repo.List(ctx, repository.ProductQuery{})
		if err != nil {
			return sum, fmt.Errorf("list products: %w", err)
		}
		for _, p := range existing {
			if err := s.repo.Delete(ctx, p.ID); err != nil {
				return sum, fmt.Errorf("delete %s: %w", p.ID.Hex(), err)
			}
			sum.Deleted++
		}
	}

	for i, r := range recs {
		if _, err := s.products.Create(ctx, r.Product()); err != nil {
			slog.WarnContext(ctx, "seed: skipping record", "index", i, "title", r.Title, "err", err)
			sum.Skipped++
			continue
		}
		sum.Created++
	}

	if opts.Admin != nil {
		u, err := s.accounts.EnsureAdmin(ctx, *opts.Admin)
		if err != nil {
			return sum, fmt.Errorf("ensure admin: %w", err)
		}
		slog.InfoContext(ctx, "seed: admin ready", "email", u.Email)
	}
	return sum, nil
}
