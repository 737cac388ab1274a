package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

const (
	keyCategories = "categories"
	keyList       = "list:"
	keyProduct    = "product:"
	keyLegacy     = "product:legacy:"
)

// CachedProducts wraps a ProductRepository with read-through caching.
// Every write, stock changes included, drops the affected entries.
type CachedProducts struct {
	repository.ProductRepository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

func NewCachedProducts(repo repository.ProductRepository, c *Cache) *CachedProducts {
	return &CachedProducts{ProductRepository: repo, cache: c, logger: slog.Default()}
}

var _ repository.ProductRepository = (*CachedProducts)(nil)

type listEntry struct {
	Products []domain.Product `json:"products"`
	Total    int64            `json:"total"`
}

func (r *CachedProducts) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	return cached(ctx, r, keyProduct+id.Hex(), func() (*domain.Product, error) {
		return r.ProductRepository.GetByID(ctx, id)
	})
}

func (r *CachedProducts) GetByLegacyID(ctx context.Context, legacyID int64) (*domain.Product, error) {
	return cached(ctx, r, keyLegacy+strconv.FormatInt(legacyID, 10), func() (*domain.Product, error) {
		return r.ProductRepository.GetByLegacyID(ctx, legacyID)
	})
}

func (r *CachedProducts) List(ctx context.Context, q repository.ProductQuery) ([]domain.Product, int64, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return r.ProductRepository.List(ctx, q)
	}
	key := keyList + strconv.FormatUint(xxhash.Sum64(raw), 16)
	e, err := cached(ctx, r, key, func() (*listEntry, error) {
		list, total, err := r.ProductRepository.List(ctx, q)
		if err != nil {
			return nil, err
		}
		return &listEntry{Products: list, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return e.Products, e.Total, nil
}

func (r *CachedProducts) Categories(ctx context.Context) ([]domain.Category, error) {
	out, err := cached(ctx, r, keyCategories, func() (*[]domain.Category, error) {
		cats, err := r.ProductRepository.Categories(ctx)
		return &cats, err
	})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (r *CachedProducts) Create(ctx context.Context, p *domain.Product) error {
	if err := r.ProductRepository.Create(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, p.ID)
	return nil
}

func (r *CachedProducts) Update(ctx context.Context, p *domain.Product, fields []string) error {
	err := r.ProductRepository.Update(ctx, p, fields)
	r.invalidate(ctx, p.ID)
	return err
}

func (r *CachedProducts) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := r.ProductRepository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedProducts) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	err := r.ProductRepository.DecrementStock(ctx, id, qty)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return err
}

func (r *CachedProducts) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	err := r.ProductRepository.IncrementStock(ctx, id, qty)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return err
}

// invalidate drops the product, every legacy alias and every listing.
// Failures are logged; entries still expire with the TTL.
func (r *CachedProducts) invalidate(ctx context.Context, id primitive.ObjectID) {
	// later readers must not join a flight that loaded before this write
	r.group.Forget(keyProduct + id.Hex())
	if err := r.cache.Delete(ctx, keyProduct+id.Hex(), keyCategories); err != nil {
		r.logger.WarnContext(ctx, "cache invalidate failed", "product", id.Hex(), "err", err)
	}
	for _, pattern := range []string{keyLegacy + "*", keyList + "*"} {
		if err := r.cache.DeletePattern(ctx, pattern); err != nil {
			r.logger.WarnContext(ctx, "cache invalidate failed", "pattern", pattern, "err", err)
		}
	}
}

// cached serves key from Redis or loads it once per key across concurrent callers
func cached[T any](ctx context.Context, r *CachedProducts, key string, load func() (*T, error)) (*T, error) {
	var hit T
	ok, err := r.cache.Get(ctx, key, &hit)
	if err != nil {
		r.logger.WarnContext(ctx, "cache read failed", "key", key, "err", err)
	}
	if ok {
		return &hit, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		val, err := load()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		if err := r.cache.setRaw(ctx, key, data); err != nil {
			r.logger.WarnContext(ctx, "cache write failed", "key", key, "err", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	// each caller sharing a flight decodes its own copy, slices included
	var out T
	if err := json.Unmarshal(v.([]byte), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
