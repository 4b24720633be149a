package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/testdb"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

func TestRepositoryLookups(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t).DB()
	repo := NewRepository(conn)

	product := &models.Product{Name: "Oat Base", Price: decimal.RequireFromString("15.00"), IsActive: true}
	modifier := &models.Modifier{Name: "Espresso Shot", Price: decimal.RequireFromString("1.50"), MaxLevel: 3, IsActive: true}
	require.NoError(t, conn.Create(product).Error)
	require.NoError(t, conn.Create(modifier).Error)
	mix := &models.CreatorMix{
		CreatorID:     product.ID,
		Name:          "Morning Blend",
		IsPublished:   true,
		Configuration: types.MixConfiguration{BaseProductID: &product.ID},
	}
	require.NoError(t, conn.Create(mix).Error)

	gotProduct, err := repo.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, gotProduct.Price.Equal(decimal.RequireFromString("15")))

	gotModifier, err := repo.GetModifier(ctx, modifier.ID)
	require.NoError(t, err)
	require.Equal(t, 3, gotModifier.MaxLevel)

	gotMix, err := repo.GetCreatorMix(ctx, mix.ID)
	require.NoError(t, err)
	require.NotNil(t, gotMix.Configuration.BaseProductID)
	require.Equal(t, product.ID, *gotMix.Configuration.BaseProductID)

	_, err = repo.GetProduct(ctx, modifier.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListProductsPaginatesActiveOnly(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t).DB()
	repo := NewRepository(conn)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		p := &models.Product{Name: "p", Price: decimal.NewFromInt(1), IsActive: true, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, conn.Create(p).Error)
	}
	require.NoError(t, conn.Create(&models.Product{Name: "hidden", Price: decimal.NewFromInt(1), IsActive: false}).Error)

	first, err := repo.ListProducts(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.ListProducts(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)
}
