package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic_backend/logger"
	"clinic_backend/models"

	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ClinicService регистрация клиник, аутентификация и управление персоналом
type ClinicService struct {
	db            *gorm.DB
	subscriptions *SubscriptionService
}

// NewClinicService создает новый экземпляр ClinicService
func NewClinicService(db *gorm.DB, subscriptions *SubscriptionService) *ClinicService {
	return &ClinicService{db: db, subscriptions: subscriptions}
}

// SignupInput данные регистрации новой клиники
type SignupInput struct {
	ClinicName string
	Email      string
	Password   string
	FullName   string
	Phone      string
	Address    string
}

// SignupResult результат регистрации
type SignupResult struct {
	Clinic       *models.Clinic
	User         *models.User
	Subscription *models.Subscription
	Roles        models.RoleSet
}

// AuthResult результат аутентификации
type AuthResult struct {
	User     *models.User
	ClinicID uint
	Roles    models.RoleSet
}

// StaffMember сотрудник клиники со всеми его ролями
type StaffMember struct {
	UserID   uint      `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// Signup регистрирует клинику: владелец получает роли DOCTOR и ADMIN,
// клиника получает пробную подписку на тарифе по умолчанию
func (cs *ClinicService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	email := normalizeEmail(input.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	result := &SignupResult{}
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("ошибка проверки email: %w", err)
		}
		if count > 0 {
			return ErrEmailTaken
		}

		clinicSlug, err := uniqueSlug(tx, input.ClinicName)
		if err != nil {
			return err
		}

		clinic := &models.Clinic{
			Name:     strings.TrimSpace(input.ClinicName),
			Slug:     clinicSlug,
			Email:    email,
			Phone:    input.Phone,
			Address:  input.Address,
			IsActive: true,
		}
		if err := tx.Create(clinic).Error; err != nil {
			return fmt.Errorf("ошибка создания клиники: %w", err)
		}

		user := &models.User{
			Email:        email,
			FullName:     strings.TrimSpace(input.FullName),
			PasswordHash: string(hash),
			IsActive:     true,
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("ошибка создания пользователя: %w", err)
		}

		ownerRoles := []string{models.RoleDoctor, models.RoleAdmin}
		for _, roleName := range ownerRoles {
			var role models.Role
			if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
				return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
			}
			link := models.ClinicUser{ClinicID: clinic.ID, UserID: user.ID, RoleID: role.ID, IsActive: true}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("ошибка назначения роли %s: %w", roleName, err)
			}
		}

		sub, err := cs.subscriptions.CreateTrial(ctx, tx, clinic.ID)
		if err != nil {
			return err
		}

		result.Clinic = clinic
		result.User = user
		result.Subscription = sub
		result.Roles = models.NewRoleSet(ownerRoles...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("зарегистрирована клиника", "clinic_id", result.Clinic.ID, "slug", result.Clinic.Slug)
	return result, nil
}

// Authenticate проверяет пароль и возвращает роли пользователя в его первой клинике
func (cs *ClinicService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	db := cs.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	var links []models.ClinicUser
	if err := db.Preload("Role").
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Order("clinic_id ASC, id ASC").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения ролей: %w", err)
	}

	result := &AuthResult{User: &user, Roles: models.NewRoleSet()}
	if len(links) > 0 {
		result.ClinicID = links[0].ClinicID
		var names []string
		for _, link := range links {
			if link.ClinicID == result.ClinicID {
				names = append(names, link.Role.Name)
			}
		}
		result.Roles = models.NewRoleSet(names...)
	}

	now := time.Now()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now).Error; err != nil {
		logger.Warn("не удалось обновить время входа", "user_id", user.ID, "error", err)
	}
	user.LastLogin = &now

	return result, nil
}

// ListStaff возвращает активных сотрудников клиники с их ролями
func (cs *ClinicService) ListStaff(ctx context.Context, clinicID uint) ([]StaffMember, error) {
	var links []models.ClinicUser
	err := cs.db.WithContext(ctx).
		Preload("User").Preload("Role").
		Where("clinic_id = ? AND is_active = ?", clinicID, true).
		Order("user_id ASC, id ASC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сотрудников: %w", err)
	}

	var staff []StaffMember
	index := make(map[uint]int)
	for _, link := range links {
		i, ok := index[link.UserID]
		if !ok {
			staff = append(staff, StaffMember{
				UserID:   link.UserID,
				Email:    link.User.Email,
				FullName: link.User.FullName,
				JoinedAt: link.CreatedAt,
			})
			i = len(staff) - 1
			index[link.UserID] = i
		}
		staff[i].Roles = append(staff[i].Roles, link.Role.Name)
	}
	for i := range staff {
		staff[i].Roles = models.NewRoleSet(staff[i].Roles...).Names()
	}
	return staff, nil
}

// EnsureUser находит пользователя по email или создает нового с временным паролем.
// Временный пароль возвращается только для созданного пользователя.
func (cs *ClinicService) EnsureUser(ctx context.Context, email, fullName string) (*models.User, string, error) {
	return ensureUser(cs.db.WithContext(ctx), email, fullName)
}

// AddStaffInput данные нового сотрудника
type AddStaffInput struct {
	Email         string
	FullName      string
	Role          string
	AlsoMakeAdmin bool
}

// AddStaffResult добавленный сотрудник и его роли в клинике
type AddStaffResult struct {
	User              *models.User
	Roles             models.RoleSet
	TemporaryPassword string
}

// AddStaff создает пользователя при необходимости и назначает ему роли в одной
// транзакции: при отказе по лимиту не остается ни пользователя, ни ролей.
func (cs *ClinicService) AddStaff(ctx context.Context, clinicID uint, input AddStaffInput) (*AddStaffResult, error) {
	result := &AddStaffResult{}

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, tempPassword, err := ensureUser(tx, input.Email, input.FullName)
		if err != nil {
			return err
		}

		link, err := cs.subscriptions.addStaffLinkTx(ctx, tx, clinicID, user.ID, input.Role)
		if err != nil {
			return err
		}
		roles := []string{link.Role.Name}

		if input.AlsoMakeAdmin && input.Role != models.RoleAdmin {
			_, err := cs.subscriptions.addStaffLinkTx(ctx, tx, clinicID, user.ID, models.RoleAdmin)
			if err != nil && !errors.Is(err, ErrStaffLinkExists) {
				return err
			}
			roles = append(roles, models.RoleAdmin)
		}

		result.User = user
		result.Roles = models.NewRoleSet(roles...)
		result.TemporaryPassword = tempPassword
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("сотрудник добавлен", "clinic_id", clinicID, "user_id", result.User.ID, "roles", result.Roles.Names())
	return result, nil
}

func ensureUser(db *gorm.DB, email, fullName string) (*models.User, string, error) {
	email = normalizeEmail(email)

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("ошибка поиска пользователя: %w", err)
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	user = models.User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, "", fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return &user, tempPassword, nil
}

// GrantSuperAdmin выдает роль SUPER_ADMIN пользователю в его первой клинике
func (cs *ClinicService) GrantSuperAdmin(ctx context.Context, email string) error {
	db := cs.db.WithContext(ctx)

	var user models.User
	if err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return fmt.Errorf("пользователь %s: %w", email, err)
	}

	var link models.ClinicUser
	if err := db.Where("user_id = ?", user.ID).Order("clinic_id ASC").First(&link).Error; err != nil {
		return fmt.Errorf("пользователь %s не состоит ни в одной клинике: %w", email, err)
	}

	var role models.Role
	if err := db.Where("name = ?", models.RoleSuperAdmin).First(&role).Error; err != nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, models.RoleSuperAdmin)
	}

	superAdmin := models.ClinicUser{ClinicID: link.ClinicID, UserID: user.ID, RoleID: role.ID}
	err := db.Where(models.ClinicUser{ClinicID: link.ClinicID, UserID: user.ID, RoleID: role.ID}).
		Attrs(models.ClinicUser{IsActive: true}).
		FirstOrCreate(&superAdmin).Error
	if err != nil {
		return fmt.Errorf("ошибка назначения SUPER_ADMIN: %w", err)
	}
	if !superAdmin.IsActive {
		return db.Model(&superAdmin).Update("is_active", true).Error
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// uniqueSlug строит slug из названия клиники и добавляет суффикс при совпадении
func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "clinic"
	}

	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Model(&models.Clinic{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("ошибка проверки slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func generateTempPassword() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации пароля: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
