package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"clinic_backend/entitlement"
	"clinic_backend/models"
	"clinic_backend/services"
	"clinic_backend/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func countAudit(t *testing.T, env *testutils.Env, clinicID uint, action services.AuditAction) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.DB.Model(&models.AuditLog{}).
		Where("tenant_id = ? AND action = ? AND success = ?", clinicID, string(action), true).
		Count(&count).Error)
	return count
}

func TestSubscriptionService_SignupCreatesTrial(t *testing.T) {
	env := testutils.NewEnv(t)
	result := env.SignupClinic(t, "Smile Dental", "owner@smile.test")

	sub, err := env.Subscriptions.GetByClinic(context.Background(), result.Clinic.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
	assert.Equal(t, models.PlanStarter, sub.Plan.Name)
	require.NotNil(t, sub.TrialEndsAt)
	assert.True(t, sub.TrialEndsAt.Equal(env.Clock.Now().Add(14*day)))
	assert.Nil(t, sub.EndsAt)

	usage, err := env.Subscriptions.Usage(context.Background(), result.Clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.DoctorCount)
	assert.Equal(t, int64(1), usage.TotalStaffCount) // ADMIN не учитывается
}

func TestSubscriptionService_GetByClinicMissing(t *testing.T) {
	env := testutils.NewEnv(t)

	sub, err := env.Subscriptions.GetByClinic(context.Background(), 9999)
	assert.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSubscriptionService_ReconcileExpiryFiresOnce(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Expiry Clinic", "owner@expiry.test").Clinic.ID

	sub, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)

	// До окончания ничего не меняется
	same, justExpired, err := env.Subscriptions.ReconcileExpiry(ctx, sub)
	require.NoError(t, err)
	assert.False(t, justExpired)
	assert.Equal(t, models.SubscriptionTrialing, same.Status)

	env.Clock.Advance(15 * day)
	stale := *sub

	expired, justExpired, err := env.Subscriptions.ReconcileExpiry(ctx, sub)
	require.NoError(t, err)
	assert.True(t, justExpired)
	assert.Equal(t, models.SubscriptionPastDue, expired.Status)
	assert.Nil(t, expired.TrialEndsAt)

	// Устаревшая копия: переход уже выполнен, повторно не срабатывает
	again, justExpired, err := env.Subscriptions.ReconcileExpiry(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, justExpired)
	assert.Equal(t, models.SubscriptionPastDue, again.Status)

	stored, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, stored.Status)
	assert.Nil(t, stored.TrialEndsAt)

	assert.Equal(t, int64(1), countAudit(t, env, clinicID, services.ActionSubscriptionTrialExpired))
}

func TestSubscriptionService_ReconcileExpiryAuditFailure(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Audit Clinic", "owner@auditfail.test").Clinic.ID

	sub, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	require.NoError(t, env.DB.Migrator().DropTable(&models.AuditLog{}))

	env.Clock.Advance(15 * day)
	expired, justExpired, err := env.Subscriptions.ReconcileExpiry(ctx, sub)
	require.NoError(t, err)
	assert.True(t, justExpired)
	assert.Equal(t, models.SubscriptionPastDue, expired.Status)

	stored, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, stored.Status)
}

func TestSubscriptionService_ReconcileExpiryNil(t *testing.T) {
	env := testutils.NewEnv(t)

	sub, justExpired, err := env.Subscriptions.ReconcileExpiry(context.Background(), nil)
	assert.NoError(t, err)
	assert.False(t, justExpired)
	assert.Nil(t, sub)
}

func TestSubscriptionService_Upgrade(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Upgrade Clinic", "owner@upgrade.test").Clinic.ID
	env.SetSubscription(t, clinicID, map[string]interface{}{"ends_at": env.Clock.Now().Add(5 * day)})

	sub, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanGrowth, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, models.PlanGrowth, decision.Target.Name)

	assert.Equal(t, models.PlanGrowth, sub.Plan.Name)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Nil(t, sub.TrialEndsAt)
	assert.Nil(t, sub.EndsAt)

	assert.Equal(t, int64(1), countAudit(t, env, clinicID, services.ActionSubscriptionUpgrade))
}

func TestSubscriptionService_UpgradeDenials(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Denial Clinic", "owner@denial.test").Clinic.ID

	tests := []struct {
		name   string
		target string
		reason entitlement.Reason
	}{
		{"same plan", models.PlanStarter, entitlement.ReasonNotAnUpgrade},
		{"unknown plan", "PLATINUM", entitlement.ReasonUnknownPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, tt.target, entitlement.DirectionUpgrade)
			require.NoError(t, err)
			assert.Nil(t, sub)
			assert.False(t, decision.Allowed)
			assert.True(t, decision.HasReason(tt.reason))
			assert.False(t, decision.RequiresUpgrade())
		})
	}

	stored, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStarter, stored.Plan.Name)
	assert.Equal(t, models.SubscriptionTrialing, stored.Status)
}

func TestSubscriptionService_UpgradeFromPastDue(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Late Clinic", "owner@late.test").Clinic.ID

	env.Clock.Advance(20 * day)
	current, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	_, justExpired, err := env.Subscriptions.ReconcileExpiry(ctx, current)
	require.NoError(t, err)
	require.True(t, justExpired)

	sub, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanPro, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, models.PlanPro, sub.Plan.Name)
}

func TestSubscriptionService_DowngradeReportsBothLimits(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Busy Clinic", "owner@busy.test").Clinic.ID

	_, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanGrowth, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	doctor := env.AddStaff(t, clinicID, "doctor2@busy.test", models.RoleDoctor)
	r1 := env.AddStaff(t, clinicID, "r1@busy.test", models.RoleReceptionist)
	r2 := env.AddStaff(t, clinicID, "r2@busy.test", models.RoleReceptionist)

	sub, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanStarter, entitlement.DirectionDowngrade)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.False(t, decision.Allowed)
	require.Len(t, decision.Denials, 2)
	assert.True(t, decision.HasReason(entitlement.ReasonDowngradeExceedsDoctorLimit))
	assert.True(t, decision.HasReason(entitlement.ReasonDowngradeExceedsStaffLimit))

	doctorDenial := decision.Denials[0]
	require.NotNil(t, doctorDenial.CurrentCount)
	require.NotNil(t, doctorDenial.Limit)
	assert.Equal(t, int64(2), *doctorDenial.CurrentCount)
	assert.Equal(t, 1, *doctorDenial.Limit)

	for _, link := range []uint{doctor.UserID, r1.UserID, r2.UserID} {
		require.NoError(t, env.Subscriptions.RemoveStaff(ctx, clinicID, link))
	}

	sub, decision, err = env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanStarter, entitlement.DirectionDowngrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, models.PlanStarter, sub.Plan.Name)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, int64(1), countAudit(t, env, clinicID, services.ActionSubscriptionDowngrade))
}

func TestSubscriptionService_DowngradeToHigherPlanDenied(t *testing.T) {
	env := testutils.NewEnv(t)
	clinicID := env.SignupClinic(t, "Small Clinic", "owner@small.test").Clinic.ID

	_, decision, err := env.Subscriptions.ChangePlan(context.Background(), clinicID, models.PlanPro, entitlement.DirectionDowngrade)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.HasReason(entitlement.ReasonNotADowngrade))
}

func TestSubscriptionService_Cancel(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Cancel Clinic", "owner@cancel.test").Clinic.ID

	sub, decision, err := env.Subscriptions.Cancel(ctx, clinicID)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, models.SubscriptionCanceled, sub.Status)
	require.NotNil(t, sub.EndsAt)
	assert.True(t, sub.EndsAt.Equal(env.Clock.Now().Add(30*day)))

	_, decision, err = env.Subscriptions.Cancel(ctx, clinicID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.HasReason(entitlement.ReasonAlreadyCanceled))

	assert.Equal(t, int64(1), countAudit(t, env, clinicID, services.ActionSubscriptionCancel))
}

func TestSubscriptionService_CancelWithoutSubscription(t *testing.T) {
	env := testutils.NewEnv(t)
	clinicID := env.SignupClinic(t, "Bare Clinic", "owner@bare.test").Clinic.ID
	require.NoError(t, env.DB.Where("clinic_id = ?", clinicID).Delete(&models.Subscription{}).Error)

	_, decision, err := env.Subscriptions.Cancel(context.Background(), clinicID)
	require.NoError(t, err)
	assert.True(t, decision.HasReason(entitlement.ReasonNoSubscription))
}

func TestSubscriptionService_AdminOverride(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Override Clinic", "owner@override.test").Clinic.ID

	pro, err := env.Catalog.GetPlan(ctx, models.PlanPro)
	require.NoError(t, err)

	t.Run("defaults to active and clears trial", func(t *testing.T) {
		sub, err := env.Subscriptions.AdminOverride(ctx, clinicID, pro.ID, "")
		require.NoError(t, err)
		assert.Equal(t, models.PlanPro, sub.Plan.Name)
		assert.Equal(t, models.SubscriptionActive, sub.Status)
		assert.Nil(t, sub.TrialEndsAt)
	})

	t.Run("cheaper plan without comparison rules", func(t *testing.T) {
		starter, err := env.Catalog.GetPlan(ctx, models.PlanStarter)
		require.NoError(t, err)
		sub, err := env.Subscriptions.AdminOverride(ctx, clinicID, starter.ID, models.SubscriptionPastDue)
		require.NoError(t, err)
		assert.Equal(t, models.PlanStarter, sub.Plan.Name)
		assert.Equal(t, models.SubscriptionPastDue, sub.Status)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := env.Subscriptions.AdminOverride(ctx, clinicID, pro.ID, "frozen")
		assert.ErrorIs(t, err, services.ErrInvalidStatus)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := env.Subscriptions.AdminOverride(ctx, clinicID, 9999, models.SubscriptionActive)
		assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)
	})

	t.Run("unknown clinic", func(t *testing.T) {
		_, err := env.Subscriptions.AdminOverride(ctx, 9999, pro.ID, models.SubscriptionActive)
		assert.ErrorIs(t, err, services.ErrClinicNotFound)
	})

	assert.Equal(t, int64(2), countAudit(t, env, clinicID, services.ActionSubscriptionOverride))
}

func TestSubscriptionService_AdminOverrideCreatesMissing(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Lost Clinic", "owner@lost.test").Clinic.ID
	require.NoError(t, env.DB.Where("clinic_id = ?", clinicID).Delete(&models.Subscription{}).Error)

	growth, err := env.Catalog.GetPlan(ctx, models.PlanGrowth)
	require.NoError(t, err)

	sub, err := env.Subscriptions.AdminOverride(ctx, clinicID, growth.ID, models.SubscriptionTrialing)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.True(t, sub.TrialEndsAt.Equal(env.Clock.Now().Add(14*day)))
}

func TestSubscriptionService_Details(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Details Clinic", "owner@details.test").Clinic.ID
	env.AddStaff(t, clinicID, "front@details.test", models.RoleReceptionist)

	env.Clock.Advance(36 * time.Hour)
	details, err := env.Subscriptions.Details(ctx, clinicID)
	require.NoError(t, err)
	assert.True(t, details.HasAccess)
	require.NotNil(t, details.TrialDaysLeft)
	assert.Equal(t, 13, *details.TrialDaysLeft)
	assert.Equal(t, int64(1), details.Usage.DoctorCount)
	assert.Equal(t, int64(2), details.Usage.TotalStaffCount)

	env.Clock.Advance(13 * day)
	details, err = env.Subscriptions.Details(ctx, clinicID)
	require.NoError(t, err)
	assert.False(t, details.HasAccess)
	assert.Equal(t, models.SubscriptionPastDue, details.Subscription.Status)
	assert.Nil(t, details.TrialDaysLeft)

	// Просмотр не сохраняет переход: отказ TrialExpired остается за защищенным запросом
	stored, err := env.Subscriptions.GetByClinic(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, stored.Status)
	assert.Equal(t, int64(0), countAudit(t, env, clinicID, services.ActionSubscriptionTrialExpired))

	_, err = env.Subscriptions.Details(ctx, 9999)
	assert.ErrorIs(t, err, services.ErrSubscriptionNotFound)
}

func TestSubscriptionService_ListOverview(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	first := env.SignupClinic(t, "First Clinic", "owner@first.test").Clinic.ID
	second := env.SignupClinic(t, "Second Clinic", "owner@second.test").Clinic.ID

	_, _, err := env.Subscriptions.ChangePlan(ctx, second, models.PlanGrowth, entitlement.DirectionUpgrade)
	require.NoError(t, err)

	overview, err := env.Subscriptions.ListOverview(ctx)
	require.NoError(t, err)
	require.Len(t, overview, 2)

	assert.Equal(t, first, overview[0].ClinicID)
	assert.Equal(t, models.PlanStarter, overview[0].PlanName)
	assert.Equal(t, models.SubscriptionTrialing, overview[0].Status)
	require.NotNil(t, overview[0].TrialDaysLeft)
	assert.Equal(t, 14, *overview[0].TrialDaysLeft)

	assert.Equal(t, second, overview[1].ClinicID)
	assert.Equal(t, models.PlanGrowth, overview[1].PlanName)
	assert.Equal(t, int64(5900), overview[1].PriceMonthly)
	assert.Nil(t, overview[1].TrialDaysLeft)
}

func TestSubscriptionService_AddStaffLinkCapacity(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Starter Clinic", "owner@starter.test").Clinic.ID

	newUser := func(email string) uint {
		user, _, err := env.Clinics.EnsureUser(ctx, email, email)
		require.NoError(t, err)
		return user.ID
	}

	// STARTER: один врач уже есть (владелец)
	_, err := env.Subscriptions.AddStaffLink(ctx, clinicID, newUser("doc@starter.test"), models.RoleDoctor)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrCapacityDenied)
	var denial *services.DenialError
	require.True(t, errors.As(err, &denial))
	assert.True(t, denial.Decision.HasReason(entitlement.ReasonDoctorLimitReached))
	assert.True(t, denial.Decision.RequiresUpgrade())

	// Лимит персонала 2: владелец + один администратор регистратуры
	_, err = env.Subscriptions.AddStaffLink(ctx, clinicID, newUser("front1@starter.test"), models.RoleReceptionist)
	require.NoError(t, err)

	_, err = env.Subscriptions.AddStaffLink(ctx, clinicID, newUser("front2@starter.test"), models.RoleReceptionist)
	require.True(t, errors.As(err, &denial))
	assert.True(t, denial.Decision.HasReason(entitlement.ReasonStaffLimitReached))

	// Административные роли лимитом не ограничены
	link, err := env.Subscriptions.AddStaffLink(ctx, clinicID, newUser("manager@starter.test"), models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, link.IsActive)
	assert.Equal(t, models.RoleAdmin, link.Role.Name)

	usage, err := env.Subscriptions.Usage(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.DoctorCount)
	assert.Equal(t, int64(2), usage.TotalStaffCount)
	assert.Equal(t, int64(2), countAudit(t, env, clinicID, services.ActionStaffAdd))
}

func TestSubscriptionService_AddStaffLinkInactiveSubscription(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Closed Clinic", "owner@closed.test").Clinic.ID
	env.SetSubscription(t, clinicID, map[string]interface{}{"status": models.SubscriptionPastDue, "trial_ends_at": nil})

	user, _, err := env.Clinics.EnsureUser(ctx, "admin@closed.test", "Admin")
	require.NoError(t, err)

	_, err = env.Subscriptions.AddStaffLink(ctx, clinicID, user.ID, models.RoleAdmin)
	var denial *services.DenialError
	require.True(t, errors.As(err, &denial))
	assert.True(t, denial.Decision.HasReason(entitlement.ReasonSubscriptionInactive))
}

func TestSubscriptionService_AddStaffLinkDuplicateAndReactivate(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Return Clinic", "owner@return.test").Clinic.ID

	first := env.AddStaff(t, clinicID, "front@return.test", models.RoleReceptionist)

	_, err := env.Subscriptions.AddStaffLink(ctx, clinicID, first.UserID, models.RoleReceptionist)
	assert.ErrorIs(t, err, services.ErrStaffLinkExists)

	require.NoError(t, env.Subscriptions.RemoveStaff(ctx, clinicID, first.UserID))
	usage, err := env.Subscriptions.Usage(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.TotalStaffCount)

	again, err := env.Subscriptions.AddStaffLink(ctx, clinicID, first.UserID, models.RoleReceptionist)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.IsActive)

	var links int64
	require.NoError(t, env.DB.Model(&models.ClinicUser{}).Where("user_id = ?", first.UserID).Count(&links).Error)
	assert.Equal(t, int64(1), links)
}

func TestSubscriptionService_AddStaffLinkUnknownRole(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Role Clinic", "owner@role.test").Clinic.ID

	user, _, err := env.Clinics.EnsureUser(ctx, "nurse@role.test", "Nurse")
	require.NoError(t, err)

	_, err = env.Subscriptions.AddStaffLink(ctx, clinicID, user.ID, "NURSE")
	assert.ErrorIs(t, err, services.ErrRoleNotFound)
}

func TestSubscriptionService_GrowthDoctorLimit(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Growth Clinic", "owner@growth.test").Clinic.ID

	_, decision, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanGrowth, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Владелец + четыре врача
	var doctors []uint
	for i := 2; i <= 5; i++ {
		link := env.AddStaff(t, clinicID, fmt.Sprintf("doctor%d@growth.test", i), models.RoleDoctor)
		doctors = append(doctors, link.UserID)
	}

	sixth, _, err := env.Clinics.EnsureUser(ctx, "doctor6@growth.test", "Doctor 6")
	require.NoError(t, err)

	_, err = env.Subscriptions.AddStaffLink(ctx, clinicID, sixth.ID, models.RoleDoctor)
	var denial *services.DenialError
	require.True(t, errors.As(err, &denial))
	primary, ok := denial.Decision.Primary()
	require.True(t, ok)
	assert.Equal(t, entitlement.ReasonDoctorLimitReached, primary.Reason)
	require.NotNil(t, primary.CurrentCount)
	require.NotNil(t, primary.Limit)
	assert.Equal(t, int64(5), *primary.CurrentCount)
	assert.Equal(t, 5, *primary.Limit)

	require.NoError(t, env.Subscriptions.RemoveStaff(ctx, clinicID, doctors[0]))

	link, err := env.Subscriptions.AddStaffLink(ctx, clinicID, sixth.ID, models.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, link.IsActive)

	usage, err := env.Subscriptions.Usage(ctx, clinicID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage.DoctorCount)
}

func TestSubscriptionService_ChangeStaffRole(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	owner := env.SignupClinic(t, "Roles Clinic", "owner@roles.test")
	clinicID := owner.Clinic.ID
	front := env.AddStaff(t, clinicID, "front@roles.test", models.RoleReceptionist)

	t.Run("doctor limit counts the replaced role out", func(t *testing.T) {
		_, err := env.Subscriptions.ChangeStaffRole(ctx, clinicID, front.UserID, models.RoleDoctor, nil)
		var denial *services.DenialError
		require.True(t, errors.As(err, &denial))
		primary, _ := denial.Decision.Primary()
		assert.Equal(t, entitlement.ReasonDoctorLimitReached, primary.Reason)
		require.NotNil(t, primary.CurrentCount)
		assert.Equal(t, int64(1), *primary.CurrentCount)

		var stored models.ClinicUser
		require.NoError(t, env.DB.First(&stored, front.ID).Error)
		assert.True(t, stored.IsActive)
	})

	t.Run("swap within limits", func(t *testing.T) {
		_, _, err := env.Subscriptions.ChangePlan(ctx, clinicID, models.PlanGrowth, entitlement.DirectionUpgrade)
		require.NoError(t, err)

		roles, err := env.Subscriptions.ChangeStaffRole(ctx, clinicID, front.UserID, models.RoleDoctor, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{models.RoleDoctor}, roles.Names())

		usage, err := env.Subscriptions.Usage(ctx, clinicID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), usage.DoctorCount)
		assert.Equal(t, int64(2), usage.TotalStaffCount)
	})

	t.Run("admin toggle", func(t *testing.T) {
		grant := true
		roles, err := env.Subscriptions.ChangeStaffRole(ctx, clinicID, front.UserID, "", &grant)
		require.NoError(t, err)
		assert.Equal(t, []string{models.RoleAdmin, models.RoleDoctor}, roles.Names())

		revoke := false
		roles, err = env.Subscriptions.ChangeStaffRole(ctx, clinicID, front.UserID, "", &revoke)
		require.NoError(t, err)
		assert.Equal(t, []string{models.RoleDoctor}, roles.Names())
	})

	t.Run("unknown staff", func(t *testing.T) {
		_, err := env.Subscriptions.ChangeStaffRole(ctx, clinicID, 9999, models.RoleDoctor, nil)
		assert.ErrorIs(t, err, services.ErrStaffNotFound)
	})

	assert.Equal(t, int64(3), countAudit(t, env, clinicID, services.ActionStaffRoleChange))
}

func TestSubscriptionService_RemoveStaffNotFound(t *testing.T) {
	env := testutils.NewEnv(t)
	clinicID := env.SignupClinic(t, "Empty Clinic", "owner@empty.test").Clinic.ID

	err := env.Subscriptions.RemoveStaff(context.Background(), clinicID, 9999)
	assert.ErrorIs(t, err, services.ErrStaffNotFound)
}

func TestSubscriptionService_ActorRecordedInAudit(t *testing.T) {
	env := testutils.NewEnv(t)
	result := env.SignupClinic(t, "Actor Clinic", "owner@actor.test")
	ctx := services.ContextWithActor(context.Background(), result.User.ID)

	_, _, err := env.Subscriptions.Cancel(ctx, result.Clinic.ID)
	require.NoError(t, err)

	var entry models.AuditLog
	require.NoError(t, env.DB.Where("action = ?", string(services.ActionSubscriptionCancel)).First(&entry).Error)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, result.User.ID, *entry.UserID)
	assert.True(t, entry.Success)
	assert.Contains(t, entry.NewValues, "canceled")
}

func TestSubscriptionService_DeniedChangeIsAudited(t *testing.T) {
	env := testutils.NewEnv(t)
	result := env.SignupClinic(t, "Denied Clinic", "owner@denied.test")
	ctx := context.Background()

	_, decision, err := env.Subscriptions.ChangePlan(ctx, result.Clinic.ID, models.PlanStarter, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	var entry models.AuditLog
	require.NoError(t, env.DB.Where("tenant_id = ? AND action = ?", result.Clinic.ID, string(services.ActionSubscriptionUpgrade)).First(&entry).Error)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.ErrorMsg, "NotAnUpgrade")
	assert.Equal(t, int64(0), countAudit(t, env, result.Clinic.ID, services.ActionSubscriptionUpgrade))

	sub, err := env.Subscriptions.GetByClinic(ctx, result.Clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
}
