package api

import (
	"errors"
	"net/http"
	"time"

	"clinic_backend/auth"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler регистрация клиник и вход
type AuthHandler struct {
	clinics *services.ClinicService
	tokens  *auth.TokenIssuer
}

// NewAuthHandler создает новый экземпляр AuthHandler
func NewAuthHandler(clinics *services.ClinicService, tokens *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{clinics: clinics, tokens: tokens}
}

type signupRequest struct {
	ClinicName string `json:"clinicName" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	FullName   string `json:"fullName" binding:"required"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Token        string               `json:"token"`
	ExpiresAt    time.Time            `json:"expires_at"`
	User         *models.User         `json:"user"`
	ClinicID     uint                 `json:"clinic_id"`
	Roles        []string             `json:"roles"`
	Clinic       *models.Clinic       `json:"clinic,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Signup регистрирует клинику с владельцем и пробной подпиской
// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Неверный формат данных: "+err.Error())
		return
	}

	result, err := h.clinics.Signup(c.Request.Context(), services.SignupInput{
		ClinicName: req.ClinicName,
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Address:    req.Address,
	})
	if errors.Is(err, services.ErrEmailTaken) {
		ErrorResponse(c, http.StatusConflict, "Пользователь с таким email уже существует")
		return
	}
	if err != nil {
		InternalError(c, "ошибка регистрации клиники", err)
		return
	}

	roles := result.Roles.Names()
	token, expiresAt, err := h.tokens.Issue(result.User.ID, result.Clinic.ID, roles)
	if err != nil {
		InternalError(c, "ошибка выпуска токена", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, sessionResponse{
		Token:        token,
		ExpiresAt:    expiresAt,
		User:         result.User,
		ClinicID:     result.Clinic.ID,
		Roles:        roles,
		Clinic:       result.Clinic,
		Subscription: result.Subscription,
	})
}

// Login проверяет учетные данные и выдает токен
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Email и пароль обязательны")
		return
	}

	result, err := h.clinics.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		ErrorResponse(c, http.StatusUnauthorized, "Неверный email или пароль")
		return
	}
	if err != nil {
		InternalError(c, "ошибка аутентификации", err)
		return
	}

	roles := result.Roles.Names()
	token, expiresAt, err := h.tokens.Issue(result.User.ID, result.ClinicID, roles)
	if err != nil {
		InternalError(c, "ошибка выпуска токена", err)
		return
	}

	SuccessResponse(c, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      result.User,
		ClinicID:  result.ClinicID,
		Roles:     roles,
	})
}
