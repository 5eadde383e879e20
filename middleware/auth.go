package middleware

import (
	"net/http"
	"strings"

	"clinic_backend/auth"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// Ключи контекста gin
const (
	ContextUserID   = "user_id"
	ContextClinicID = "clinic_id"
	ContextRoles    = "roles"
)

// AuthMiddleware проверяет JWT токен и собирает роли пользователя
type AuthMiddleware struct {
	tokens *auth.TokenIssuer
}

// NewAuthMiddleware создает новый экземпляр AuthMiddleware
func NewAuthMiddleware(tokens *auth.TokenIssuer) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth middleware для проверки аутентификации
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Требуется заголовок Authorization",
			})
			return
		}

		claims, err := am.tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Недействительный или истекший токен",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClinicID, claims.ClinicID)
		c.Set(ContextRoles, models.NewRoleSet(claims.Roles...))
		c.Request = c.Request.WithContext(services.ContextWithActor(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// RequireRoles пропускает пользователей, у которых есть хотя бы одна из ролей
func (am *AuthMiddleware) RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetRoles(c).HasAny(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status": "error",
				"error":  "Недостаточно прав",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin пропускает администраторов клиники и суперадминистраторов
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return am.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
}

// RequireSuperAdmin пропускает только суперадминистраторов платформы
func (am *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return am.RequireRoles(models.RoleSuperAdmin)
}

func extractToken(header string) string {
	switch {
	case strings.HasPrefix(header, "Bearer "):
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case strings.HasPrefix(header, "Token "):
		return strings.TrimSpace(strings.TrimPrefix(header, "Token "))
	}
	return strings.TrimSpace(header)
}

// GetUserID возвращает ID текущего пользователя
func GetUserID(c *gin.Context) uint {
	return c.GetUint(ContextUserID)
}

// GetClinicID возвращает ID клиники из токена
func GetClinicID(c *gin.Context) uint {
	return c.GetUint(ContextClinicID)
}

// GetRoles возвращает набор ролей текущего пользователя
func GetRoles(c *gin.Context) models.RoleSet {
	if value, exists := c.Get(ContextRoles); exists {
		if roles, ok := value.(models.RoleSet); ok {
			return roles
		}
	}
	return models.NewRoleSet()
}
