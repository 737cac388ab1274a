package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// countingRepo counts the reads that reach the backing store
type countingRepo struct {
	repository.ProductRepository
	gets, lists, cats atomic.Int32
}

func (c *countingRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	c.gets.Add(1)
	return c.ProductRepository.GetByID(ctx, id)
}

func (c *countingRepo) List(ctx context.Context, q repository.ProductQuery) ([]domain.Product, int64, error) {
	c.lists.Add(1)
	return c.ProductRepository.List(ctx, q)
}

func (c *countingRepo) Categories(ctx context.Context) ([]domain.Category, error) {
	c.cats.Add(1)
	return c.ProductRepository.Categories(ctx)
}

func setupCached(t *testing.T) (*CachedProducts, *countingRepo) {
	t.Helper()
	c, _ := setupTestCache(t)
	backing := &countingRepo{ProductRepository: repository.NewMemoryStore()}
	return NewCachedProducts(backing, c), backing
}

func TestCachedProducts_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo, backing := setupCached(t)

	p := domain.Product{Title: "Lamp", Price: 20, Stock: 3, Category: domain.CategoryHome, IsActive: true}
	require.NoError(t, repo.Create(ctx, &p))

	for i := 0; i < 3; i++ {
		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lamp", got.Title)
	}
	assert.Equal(t, int32(1), backing.gets.Load())

	q := repository.ProductQuery{ActiveOnly: true}
	for i := 0; i < 2; i++ {
		list, total, err := repo.List(ctx, q)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, int64(1), total)
	}
	assert.Equal(t, int32(1), backing.lists.Load())

	// a different query is a different entry
	_, _, err := repo.List(ctx, repository.ProductQuery{ActiveOnly: true, Category: domain.CategoryBooks})
	require.NoError(t, err)
	assert.Equal(t, int32(2), backing.lists.Load())

	cats, err := repo.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{domain.CategoryHome}, cats)
	_, _ = repo.Categories(ctx)
	assert.Equal(t, int32(1), backing.cats.Load())
}

func TestCachedProducts_StockChangesInvalidate(t *testing.T) {
	ctx := context.Background()
	repo, backing := setupCached(t)

	p := domain.Product{Title: "Lamp", Price: 20, Stock: 3, Category: domain.CategoryHome, IsActive: true}
	require.NoError(t, repo.Create(ctx, &p))
	_, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	_, _, err = repo.List(ctx, repository.ProductQuery{})
	require.NoError(t, err)

	require.NoError(t, repo.DecrementStock(ctx, p.ID, 2))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stock)
	assert.Equal(t, int32(2), backing.gets.Load())

	list, _, err := repo.List(ctx, repository.ProductQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list[0].Stock)

	// a failed decrement leaves the cache alone
	assert.ErrorIs(t, repo.DecrementStock(ctx, p.ID, 5), repository.ErrInsufficientStock)
	_, _ = repo.GetByID(ctx, p.ID)
	assert.Equal(t, int32(2), backing.gets.Load())
}

func TestCachedProducts_DeleteAndMisses(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupCached(t)

	p := domain.Product{Title: "Old", LegacyID: 9, Category: domain.CategoryBooks, IsActive: true}
	require.NoError(t, repo.Create(ctx, &p))
	got, err := repo.GetByLegacyID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByLegacyID(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCachedProducts_SharedFlightCopiesSlices(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupCached(t)

	started, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	load := func() (*domain.Product, error) {
		once.Do(func() { close(started) })
		<-release
		return &domain.Product{Title: "Lamp", Tags: []string{"desk"}, Images: []string{"a.png"}}, nil
	}

	var wg sync.WaitGroup
	results := make([]*domain.Product, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cached(ctx, repo, "shared", load)
			assert.NoError(t, err)
			results[i] = p
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	results[0].Tags[0] = "changed"
	results[0].Images[0] = "changed.png"
	assert.Equal(t, "desk", results[1].Tags[0])
	assert.Equal(t, "a.png", results[1].Images[0])
}

func TestCachedProducts_UpdateWritesNamedFields(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupCached(t)

	p := domain.Product{Title: "Lamp", Price: 20, Stock: 3, Category: domain.CategoryHome, IsActive: true}
	require.NoError(t, repo.Create(ctx, &p))
	_, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DecrementStock(ctx, p.ID, 1))
	p.Title = "Desk lamp"
	require.NoError(t, repo.Update(ctx, &p, []string{"title"}))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", got.Title)
	assert.Equal(t, int64(2), got.Stock)
}
