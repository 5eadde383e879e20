package services

import (
	"errors"
	"fmt"

	"clinic_backend/entitlement"
)

var (
	// ErrSubscriptionNotFound у клиники нет подписки
	ErrSubscriptionNotFound = errors.New("подписка не найдена")
	// ErrCapacityDenied добавление сотрудника отклонено лимитами тарифа
	ErrCapacityDenied = errors.New("превышен лимит тарифа")
	// ErrClinicNotFound клиника не найдена
	ErrClinicNotFound = errors.New("клиника не найдена")
	// ErrStaffLinkExists пользователь уже состоит в клинике с этой ролью
	ErrStaffLinkExists = errors.New("пользователь уже добавлен с этой ролью")
	// ErrStaffNotFound пользователь не найден среди сотрудников клиники
	ErrStaffNotFound = errors.New("сотрудник не найден")
	// ErrRoleNotFound роль отсутствует в справочнике
	ErrRoleNotFound = errors.New("роль не найдена")
	// ErrInvalidCredentials неверный email или пароль
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrEmailTaken email уже зарегистрирован
	ErrEmailTaken = errors.New("email уже зарегистрирован")
	// ErrInvalidStatus недопустимый статус подписки
	ErrInvalidStatus = errors.New("недопустимый статус подписки")
)

// DenialError отказ движка прав, переданный как ошибка из транзакции
type DenialError struct {
	Decision entitlement.Decision
}

func (e *DenialError) Error() string {
	if denial, ok := e.Decision.Primary(); ok {
		return fmt.Sprintf("%s: %s", ErrCapacityDenied, denial.Reason)
	}
	return ErrCapacityDenied.Error()
}

func (e *DenialError) Unwrap() error {
	return ErrCapacityDenied
}
