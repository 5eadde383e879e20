package services_test

import (
	"context"
	"testing"

	"clinic_backend/entitlement"
	"clinic_backend/models"
	"clinic_backend/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCatalog_ListPlansOrderedByPrice(t *testing.T) {
	env := testutils.NewEnv(t)

	plans, err := env.Catalog.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, models.PlanStarter, plans[0].Name)
	assert.Equal(t, models.PlanGrowth, plans[1].Name)
	assert.Equal(t, models.PlanPro, plans[2].Name)

	assert.Equal(t, 1, *plans[0].MaxDoctors)
	assert.Equal(t, 2, *plans[0].MaxStaff)
	assert.True(t, plans[2].IsUnlimitedDoctors())
	assert.True(t, plans[2].IsUnlimitedStaff())
	assert.True(t, plans[2].HasFeature("audit_logs"))
	assert.False(t, plans[0].HasFeature("reports"))
}

func TestPlanCatalog_GetPlan(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()

	plan, err := env.Catalog.GetPlan(ctx, models.PlanGrowth)
	require.NoError(t, err)
	assert.Equal(t, int64(5900), plan.PriceMonthly)
	assert.Equal(t, int64(59000), plan.PriceYearly)

	byID, err := env.Catalog.GetPlanByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, byID.Name)

	_, err = env.Catalog.GetPlan(ctx, "growth")
	assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)

	_, err = env.Catalog.GetPlanByID(ctx, 9999)
	assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)
}

func TestPlanCatalog_InvalidateWithoutRedis(t *testing.T) {
	env := testutils.NewEnv(t)

	assert.NotPanics(t, func() { env.Catalog.Invalidate(context.Background()) })
}
