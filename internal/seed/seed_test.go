package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/database"
	"pharmadesk/m/internal/migrations"
)

const catalog = `brand id,brand name,type,slug,dosage form,generic,strength,manufacturer,package container
1,Napa,allopathic,napa,Tablet,Paracetamol,500 mg,Beximco,10 x 10
2,Seclo,allopathic,seclo,Capsule,Omeprazole,20 mg,Square,6 x 10
x,Broken,allopathic,broken,Tablet,Nothing,1 mg,Nobody,1
3,,allopathic,empty,Tablet,Nothing,1 mg,Nobody,1
4,Short,row
`

func TestLoadMedicines(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Run(ctx, db, zap.NewNop()))

	n, err := LoadMedicines(ctx, db, strings.NewReader(catalog), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got []domain.Medicine
	require.NoError(t, db.Select(&got, `SELECT id, brand_id, brand_name, type, generic_name, manufacturer FROM medicines ORDER BY brand_id`))
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].BrandID)
	assert.Equal(t, "Paracetamol", got[0].GenericName)
	assert.Equal(t, "Square", got[1].Manufacturer)

	t.Run("reloading skips known brands", func(t *testing.T) {
		n, err := LoadMedicines(ctx, db, strings.NewReader(catalog), zap.NewNop())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := LoadMedicines(ctx, db, strings.NewReader(""), zap.NewNop())
		assert.Error(t, err)
	})
}

func TestLoadMedicinesFileMissing(t *testing.T) {
	_, err := LoadMedicinesFile(context.Background(), nil, "does-not-exist.csv", zap.NewNop())
	assert.Error(t, err)
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Run(ctx, db, zap.NewNop()))

	require.NoError(t, Plans(ctx, db))
	require.NoError(t, Plans(ctx, db))

	var plans []domain.Plan
	require.NoError(t, db.Select(&plans, `SELECT code, name, monthly_price, yearly_price, max_branches, max_users, max_items, sort_order FROM plans ORDER BY sort_order`))
	require.Len(t, plans, len(domain.DefaultPlans()))
	assert.Equal(t, domain.PlanFree, plans[0].Code)
	assert.True(t, plans[0].MonthlyPrice.IsZero())
	assert.Equal(t, "49", plans[2].MonthlyPrice.String())
	assert.Equal(t, int64(domain.Unlimited), plans[3].MaxUsers)
}
