package models

import (
	"slices"
	"sort"
	"time"
)

// Системные роли
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleAdmin        = "ADMIN"
	RoleDoctor       = "DOCTOR"
	RoleReceptionist = "RECEPTIONIST"
)

// AdministrativeRoles роли, которые не учитываются в лимите персонала
var AdministrativeRoles = []string{RoleAdmin, RoleSuperAdmin}

// Role представляет роль пользователя в клинике
type Role struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"uniqueIndex;not null;type:varchar(50)"` // ADMIN, DOCTOR, RECEPTIONIST
	DisplayName string `json:"display_name" gorm:"type:varchar(100)"`
	IsSystem    bool   `json:"is_system" gorm:"default:false"` // Системная роль (нельзя удалить)
}

// TableName задает имя таблицы для модели Role
func (Role) TableName() string {
	return "roles"
}

// IsAdministrative проверяет, относится ли роль к администраторам
func (r *Role) IsAdministrative() bool {
	return r.Name == RoleAdmin || r.Name == RoleSuperAdmin
}

// RoleCategory категория роли для проверки лимитов тарифа
type RoleCategory string

const (
	CategoryDoctor       RoleCategory = "doctor"
	CategoryGeneralStaff RoleCategory = "general_staff"
)

// CategoryForRole возвращает категорию лимита для роли.
// Для административных ролей категории нет, ok = false.
func CategoryForRole(roleName string) (RoleCategory, bool) {
	switch roleName {
	case RoleDoctor:
		return CategoryDoctor, true
	case RoleAdmin, RoleSuperAdmin, "":
		return "", false
	default:
		return CategoryGeneralStaff, true
	}
}

// RoleSet набор ролей пользователя в текущей клинике.
// Собирается один раз на запрос из токена.
type RoleSet struct {
	roles map[string]struct{}
}

// NewRoleSet создает набор ролей из списка имен
func NewRoleSet(names ...string) RoleSet {
	rs := RoleSet{roles: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if name != "" {
			rs.roles[name] = struct{}{}
		}
	}
	return rs
}

// Has проверяет наличие роли
func (rs RoleSet) Has(role string) bool {
	_, ok := rs.roles[role]
	return ok
}

// HasAny проверяет наличие хотя бы одной из ролей
func (rs RoleSet) HasAny(roles ...string) bool {
	for _, role := range roles {
		if rs.Has(role) {
			return true
		}
	}
	return false
}

// HasAdminPrivilege проверяет права администратора клиники
func (rs RoleSet) HasAdminPrivilege() bool {
	return rs.HasAny(RoleAdmin, RoleSuperAdmin)
}

// IsSuperAdmin проверяет права суперадминистратора платформы
func (rs RoleSet) IsSuperAdmin() bool {
	return rs.Has(RoleSuperAdmin)
}

// IsDoctor проверяет, является ли пользователь врачом
func (rs RoleSet) IsDoctor() bool {
	return rs.Has(RoleDoctor)
}

// Names возвращает имена ролей в стабильном порядке
func (rs RoleSet) Names() []string {
	order := []string{RoleSuperAdmin, RoleAdmin, RoleDoctor, RoleReceptionist}
	names := make([]string, 0, len(rs.roles))
	for _, name := range order {
		if rs.Has(name) {
			names = append(names, name)
		}
	}
	extra := make([]string, 0)
	for name := range rs.roles {
		if !slices.Contains(order, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Len возвращает количество ролей
func (rs RoleSet) Len() int {
	return len(rs.roles)
}
