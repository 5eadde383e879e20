package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinic_backend/middleware"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// PatientHandler пациенты клиники; доступны только при активной подписке
type PatientHandler struct {
	patients *services.PatientService
}

// NewPatientHandler создает новый экземпляр PatientHandler
func NewPatientHandler(patients *services.PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

type createPatientRequest struct {
	FullName  string     `json:"fullName" binding:"required"`
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birthDate"`
	Notes     string     `json:"notes"`
}

func pagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

// GetPatients возвращает пациентов клиники
// GET /api/patients
func (h *PatientHandler) GetPatients(c *gin.Context) {
	page, limit, offset := pagination(c)

	patients, total, err := h.patients.List(c.Request.Context(), middleware.GetClinicID(c), limit, offset)
	if err != nil {
		InternalError(c, "ошибка получения пациентов", err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"items": patients,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreatePatient добавляет пациента
// POST /api/patients
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Некорректные входные данные: "+err.Error())
		return
	}

	patient := &models.Patient{
		ClinicID:  middleware.GetClinicID(c),
		FullName:  strings.TrimSpace(req.FullName),
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	}
	if err := h.patients.Create(c.Request.Context(), patient); err != nil {
		InternalError(c, "ошибка создания пациента", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, patient)
}
