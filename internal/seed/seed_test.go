package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"
)

const jsonSeed = `[
  {"id": 1, "title": "Backpack", "price": 109.95, "category": "bags", "rating": {"rate": 3.9, "count": 120}},
  {"id": 2, "name": "Jacket", "price": 55.99, "category": "Men's Clothing", "stock": 0},
  {"id": 3, "title": "", "price": 1, "category": "books"}
]`

const yamlSeed = `
- title: Desk Lamp
  price: 19.5
  category: home
  tags: [lighting]
  isFeatured: true
`

func setup(t *testing.T) (*Seeder, *repository.MemoryStore, repository.UserRepository) {
	t.Helper()
	store := repository.NewMemoryStore()
	users := repository.NewMemoryUsers(store)
	accounts := service.NewAuthService(users, auth.NewJWTManager("k", time.Hour), auth.NewPasswordHasherWithCost(4))
	return NewSeeder(store, service.NewProductService(store), accounts), store, users
}

func TestLoad_JSONAndYAML(t *testing.T) {
	recs, err := Load(strings.NewReader(jsonSeed))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	p := recs[0].Product()
	assert.Equal(t, domain.CategoryAccessories, p.Category)
	assert.Equal(t, int64(DefaultStock), p.Stock)
	assert.Equal(t, 3.9, p.Rating.Average)
	assert.Equal(t, int64(1), p.LegacyID)

	jacket := recs[1].Product()
	assert.Equal(t, "Jacket", jacket.Title)
	assert.Equal(t, domain.CategoryOther, jacket.Category)
	assert.Zero(t, jacket.Stock, "explicit zero stock is kept")

	recs, err = Load(strings.NewReader(yamlSeed))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	lamp := recs[0].Product()
	assert.True(t, lamp.IsFeatured)
	assert.Equal(t, []string{"lighting"}, lamp.Tags)
}

func TestSeeder_Run(t *testing.T) {
	ctx := context.Background()
	s, store, users := setup(t)

	recs, err := Load(strings.NewReader(jsonSeed))
	require.NoError(t, err)
	sum, err := s.Run(ctx, recs, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2, Skipped: 1}, sum)

	// reseeding with wipe replaces the catalog
	admin := &service.RegisterInput{Username: "root", Email: "root@example.com", Password: "secret123"}
	sum, err = s.Run(ctx, recs, Options{Wipe: true, Admin: admin})
	require.NoError(t, err)
	assert.Equal(t, Summary{Deleted: 2, Created: 2, Skipped: 1}, sum)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	u, err := users.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, domain.CategoryElectronics, NormalizeCategory(" Electronics "))
	assert.Equal(t, domain.CategoryAccessories, NormalizeCategory("BAGS"))
	assert.Equal(t, domain.CategoryOther, NormalizeCategory("jewelery"))
	assert.Equal(t, domain.CategoryOther, NormalizeCategory(""))
}
