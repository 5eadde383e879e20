package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"clinic_backend/entitlement"
	"clinic_backend/models"
	"clinic_backend/services"
	"clinic_backend/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []services.TrialNotice
	failFor map[uint]bool
}

func (n *recordingNotifier) NotifyTrialEnding(_ context.Context, notice services.TrialNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[notice.ClinicID] {
		return errors.New("delivery failed")
	}
	n.notices = append(n.notices, notice)
	return nil
}

func TestTrialReminderService_RunOnce(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()

	// Обе клиники на 14 дней пробного периода; третья оплатила тариф
	ending := env.SignupClinic(t, "Ending Clinic", "owner@ending.test")
	fresh := env.SignupClinic(t, "Fresh Clinic", "owner@fresh.test")
	paid := env.SignupClinic(t, "Paid Clinic", "owner@paid.test")

	env.SetSubscription(t, fresh.Clinic.ID, map[string]interface{}{
		"trial_ends_at": env.Clock.Now().Add(30 * day),
	})
	_, decision, err := env.Subscriptions.ChangePlan(ctx, paid.Clinic.ID, models.PlanGrowth, entitlement.DirectionUpgrade)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	env.Clock.Advance(12 * day)

	notifier := &recordingNotifier{}
	reminders := services.NewTrialReminderService(env.DB, notifier, env.Config.Billing).WithClock(env.Clock.Now)

	expiring, err := reminders.ExpiringTrials(ctx)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, ending.Clinic.ID, expiring[0].ClinicID)

	sent, err := reminders.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.notices, 1)

	notice := notifier.notices[0]
	assert.Equal(t, ending.Clinic.ID, notice.ClinicID)
	assert.Equal(t, "Ending Clinic", notice.ClinicName)
	assert.Equal(t, "owner@ending.test", notice.ClinicEmail)
	assert.Equal(t, models.PlanStarter, notice.PlanName)
	assert.Equal(t, 2, notice.DaysLeft)

	// Рассылка статусы не меняет
	sub, err := env.Subscriptions.GetByClinic(ctx, ending.Clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
}

func TestTrialReminderService_SkipsExpiredAndFailedDeliveries(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()

	first := env.SignupClinic(t, "First Clinic", "owner@first.test")
	second := env.SignupClinic(t, "Second Clinic", "owner@second.test")
	expired := env.SignupClinic(t, "Expired Clinic", "owner@expired.test")
	env.SetSubscription(t, expired.Clinic.ID, map[string]interface{}{
		"trial_ends_at": env.Clock.Now().Add(10 * day),
	})

	env.Clock.Advance(13 * day)

	notifier := &recordingNotifier{failFor: map[uint]bool{first.Clinic.ID: true}}
	reminders := services.NewTrialReminderService(env.DB, notifier, env.Config.Billing).WithClock(env.Clock.Now)

	sent, err := reminders.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, second.Clinic.ID, notifier.notices[0].ClinicID)
	assert.Equal(t, 1, notifier.notices[0].DaysLeft)
}

func TestTrialReminderService_StartRejectsBadSchedule(t *testing.T) {
	env := testutils.NewEnv(t)
	billing := env.Config.Billing
	billing.ReminderCron = "not a schedule"

	reminders := services.NewTrialReminderService(env.DB, services.LogNotifier{}, billing)
	assert.Error(t, reminders.Start())
}

func TestTrialReminderService_StartStop(t *testing.T) {
	env := testutils.NewEnv(t)

	reminders := services.NewTrialReminderService(env.DB, services.LogNotifier{}, env.Config.Billing)
	require.NoError(t, reminders.Start())
	reminders.Stop()
}
