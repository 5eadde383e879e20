package api

import (
	"errors"
	"net/http"
	"strconv"

	"clinic_backend/logger"

	"github.com/gin-gonic/gin"
)

// APIResponse представляет стандартную структуру ответа API
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// SuccessResponse возвращает успешный ответ
func SuccessResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Status: "success",
		Data:   data,
	})
}

// ErrorResponse возвращает ошибку
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Status: "error",
		Error:  message,
	})
}

// InternalError логирует ошибку и отвечает 500 без подробностей
func InternalError(c *gin.Context, msg string, err error) {
	logger.CtxError(c.Request.Context(), msg, err, "path", c.FullPath())
	ErrorResponse(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
}

var errBadID = errors.New("некорректный ID")

func parseUintParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return uint(id), nil
}
