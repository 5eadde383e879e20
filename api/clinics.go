package api

import (
	"errors"
	"net/http"

	"clinic_backend/middleware"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// ClinicHandler управление персоналом клиники
type ClinicHandler struct {
	clinics *services.ClinicService
	subs    *services.SubscriptionService
}

// NewClinicHandler создает новый экземпляр ClinicHandler
func NewClinicHandler(clinics *services.ClinicService, subs *services.SubscriptionService) *ClinicHandler {
	return &ClinicHandler{clinics: clinics, subs: subs}
}

type addStaffRequest struct {
	Email         string `json:"email" binding:"required,email"`
	FullName      string `json:"fullName"`
	Role          string `json:"role" binding:"required,oneof=DOCTOR RECEPTIONIST ADMIN"`
	AlsoMakeAdmin bool   `json:"alsoMakeAdmin"`
}

type updateStaffRequest struct {
	Role          string `json:"role" binding:"omitempty,oneof=DOCTOR RECEPTIONIST ADMIN"`
	AlsoMakeAdmin *bool  `json:"alsoMakeAdmin"`
}

// GetStaff возвращает сотрудников клиники
// GET /api/clinics/staff
func (h *ClinicHandler) GetStaff(c *gin.Context) {
	staff, err := h.clinics.ListStaff(c.Request.Context(), middleware.GetClinicID(c))
	if err != nil {
		InternalError(c, "ошибка получения сотрудников", err)
		return
	}
	if staff == nil {
		staff = []services.StaffMember{}
	}
	SuccessResponse(c, http.StatusOK, staff)
}

// AddStaff добавляет сотрудника; новому пользователю выдается временный пароль
// POST /api/clinics/staff
func (h *ClinicHandler) AddStaff(c *gin.Context) {
	var req addStaffRequest
	// Тело уже прочитано проверкой лимитов, поэтому повторное чтение из кэша gin
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Требуются email и role (DOCTOR, RECEPTIONIST или ADMIN)")
		return
	}

	result, err := h.clinics.AddStaff(c.Request.Context(), middleware.GetClinicID(c), services.AddStaffInput{
		Email:         req.Email,
		FullName:      req.FullName,
		Role:          req.Role,
		AlsoMakeAdmin: req.AlsoMakeAdmin,
	})
	if !h.handleStaffLinkError(c, err) {
		return
	}

	response := gin.H{
		"user":  result.User,
		"roles": result.Roles.Names(),
	}
	if result.TemporaryPassword != "" {
		response["temporary_password"] = result.TemporaryPassword
	}
	SuccessResponse(c, http.StatusCreated, response)
}

// UpdateStaff меняет основную роль сотрудника и права администратора
// PATCH /api/clinics/staff/:userId
func (h *ClinicHandler) UpdateStaff(c *gin.Context) {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Некорректный ID пользователя")
		return
	}

	var req updateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Допустимые роли: DOCTOR, RECEPTIONIST, ADMIN")
		return
	}
	if req.Role == "" && req.AlsoMakeAdmin == nil {
		ErrorResponse(c, http.StatusBadRequest, "Требуется role или alsoMakeAdmin")
		return
	}
	if userID == middleware.GetUserID(c) && req.AlsoMakeAdmin != nil && !*req.AlsoMakeAdmin {
		ErrorResponse(c, http.StatusBadRequest, "Нельзя снять права администратора с самого себя")
		return
	}

	roles, err := h.subs.ChangeStaffRole(c.Request.Context(), middleware.GetClinicID(c), userID, req.Role, req.AlsoMakeAdmin)
	if errors.Is(err, services.ErrStaffNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Сотрудник не найден")
		return
	}
	if !h.handleStaffLinkError(c, err) {
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"user_id": userID, "roles": roles.Names()})
}

// handleStaffLinkError отвечает клиенту при ошибке и возвращает false, если обработку нужно прервать
func (h *ClinicHandler) handleStaffLinkError(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}

	var denial *services.DenialError
	switch {
	case errors.As(err, &denial):
		middleware.RenderDenial(c, denial.Decision)
	case errors.Is(err, services.ErrStaffLinkExists):
		ErrorResponse(c, http.StatusConflict, "Пользователь уже состоит в клинике с этой ролью")
	case errors.Is(err, services.ErrRoleNotFound):
		ErrorResponse(c, http.StatusBadRequest, "Неизвестная роль")
	default:
		InternalError(c, "ошибка изменения персонала", err)
	}
	return false
}

// RemoveStaff деактивирует все роли сотрудника в клинике
// DELETE /api/clinics/staff/:userId
func (h *ClinicHandler) RemoveStaff(c *gin.Context) {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Некорректный ID пользователя")
		return
	}
	if userID == middleware.GetUserID(c) {
		ErrorResponse(c, http.StatusBadRequest, "Нельзя удалить самого себя")
		return
	}

	err = h.subs.RemoveStaff(c.Request.Context(), middleware.GetClinicID(c), userID)
	if errors.Is(err, services.ErrStaffNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Сотрудник не найден")
		return
	}
	if err != nil {
		InternalError(c, "ошибка удаления сотрудника", err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "Сотрудник удален"})
}
