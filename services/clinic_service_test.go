package services_test

import (
	"context"
	"testing"

	"clinic_backend/models"
	"clinic_backend/services"
	"clinic_backend/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestClinicService_Signup(t *testing.T) {
	env := testutils.NewEnv(t)

	result := env.SignupClinic(t, "Клиника Мир", "  Owner@Health.Test ")

	assert.Equal(t, "owner@health.test", result.User.Email)
	assert.Equal(t, "klinika-mir", result.Clinic.Slug)
	assert.Equal(t, []string{models.RoleAdmin, models.RoleDoctor}, result.Roles.Names())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("password123")))
	require.NotNil(t, result.Subscription)
	assert.Equal(t, models.SubscriptionTrialing, result.Subscription.Status)
	assert.Equal(t, models.PlanStarter, result.Subscription.Plan.Name)
}

func TestClinicService_SignupUniqueSlug(t *testing.T) {
	env := testutils.NewEnv(t)

	first := env.SignupClinic(t, "Smile Clinic", "one@smile.test")
	second := env.SignupClinic(t, "Smile Clinic", "two@smile.test")

	assert.Equal(t, "smile-clinic", first.Clinic.Slug)
	assert.Equal(t, "smile-clinic-2", second.Clinic.Slug)
}

func TestClinicService_SignupEmailTaken(t *testing.T) {
	env := testutils.NewEnv(t)
	env.SignupClinic(t, "First", "owner@taken.test")

	_, err := env.Clinics.Signup(context.Background(), services.SignupInput{
		ClinicName: "Second",
		Email:      "OWNER@taken.test",
		Password:   "password123",
		FullName:   "Someone",
	})
	assert.ErrorIs(t, err, services.ErrEmailTaken)

	var clinics int64
	require.NoError(t, env.DB.Model(&models.Clinic{}).Count(&clinics).Error)
	assert.Equal(t, int64(1), clinics)
}

func TestClinicService_Authenticate(t *testing.T) {
	env := testutils.NewEnv(t)
	signup := env.SignupClinic(t, "Auth Clinic", "owner@auth.test")
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		result, err := env.Clinics.Authenticate(ctx, "Owner@Auth.test", "password123")
		require.NoError(t, err)
		assert.Equal(t, signup.User.ID, result.User.ID)
		assert.Equal(t, signup.Clinic.ID, result.ClinicID)
		assert.True(t, result.Roles.HasAdminPrivilege())
		assert.True(t, result.Roles.IsDoctor())
		assert.NotNil(t, result.User.LastLogin)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.Clinics.Authenticate(ctx, "owner@auth.test", "wrong")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := env.Clinics.Authenticate(ctx, "nobody@auth.test", "password123")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	})
}

func TestClinicService_ListStaff(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	signup := env.SignupClinic(t, "Staff Clinic", "owner@staff.test")
	clinicID := signup.Clinic.ID

	front := env.AddStaff(t, clinicID, "front@staff.test", models.RoleReceptionist)
	gone := env.AddStaff(t, clinicID, "gone@staff.test", models.RoleAdmin)
	require.NoError(t, env.Subscriptions.RemoveStaff(ctx, clinicID, gone.UserID))

	staff, err := env.Clinics.ListStaff(ctx, clinicID)
	require.NoError(t, err)
	require.Len(t, staff, 2)

	assert.Equal(t, signup.User.ID, staff[0].UserID)
	assert.Equal(t, []string{models.RoleAdmin, models.RoleDoctor}, staff[0].Roles)
	assert.Equal(t, front.UserID, staff[1].UserID)
	assert.Equal(t, []string{models.RoleReceptionist}, staff[1].Roles)
}

func TestClinicService_EnsureUser(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()

	created, tempPassword, err := env.Clinics.EnsureUser(ctx, "New@Staff.test", "Новый Сотрудник")
	require.NoError(t, err)
	assert.Equal(t, "new@staff.test", created.Email)
	assert.Len(t, tempPassword, 12)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(tempPassword)))

	existing, tempPassword, err := env.Clinics.EnsureUser(ctx, "new@staff.test", "Другое имя")
	require.NoError(t, err)
	assert.Equal(t, created.ID, existing.ID)
	assert.Empty(t, tempPassword)
	assert.Equal(t, "Новый Сотрудник", existing.FullName)
}

func TestClinicService_AddStaff(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	clinicID := env.SignupClinic(t, "Team Clinic", "owner@team.test").Clinic.ID

	result, err := env.Clinics.AddStaff(ctx, clinicID, services.AddStaffInput{
		Email:         "Manager@Team.test",
		FullName:      "Менеджер",
		Role:          models.RoleReceptionist,
		AlsoMakeAdmin: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "manager@team.test", result.User.Email)
	assert.NotEmpty(t, result.TemporaryPassword)
	assert.Equal(t, []string{models.RoleAdmin, models.RoleReceptionist}, result.Roles.Names())

	// Отказ по лимиту откатывает и создание пользователя
	_, err = env.Clinics.AddStaff(ctx, clinicID, services.AddStaffInput{
		Email:         "doctor@team.test",
		Role:          models.RoleDoctor,
		AlsoMakeAdmin: true,
	})
	assert.ErrorIs(t, err, services.ErrCapacityDenied)

	var users int64
	require.NoError(t, env.DB.Model(&models.User{}).Where("email = ?", "doctor@team.test").Count(&users).Error)
	assert.Equal(t, int64(0), users)
}

func TestClinicService_GrantSuperAdmin(t *testing.T) {
	env := testutils.NewEnv(t)
	ctx := context.Background()
	env.SignupClinic(t, "Platform Clinic", "root@platform.test")

	require.NoError(t, env.Clinics.GrantSuperAdmin(ctx, "root@platform.test"))
	// Повторный вызов ничего не ломает
	require.NoError(t, env.Clinics.GrantSuperAdmin(ctx, "root@platform.test"))

	result, err := env.Clinics.Authenticate(ctx, "root@platform.test", "password123")
	require.NoError(t, err)
	assert.True(t, result.Roles.IsSuperAdmin())

	assert.Error(t, env.Clinics.GrantSuperAdmin(ctx, "missing@platform.test"))
}
