package entitlement

import (
	"clinic_backend/models"
)

// ActionKind тип проверяемого действия
type ActionKind string

const (
	ActionAccessResource ActionKind = "access_resource"
	ActionUseFeature     ActionKind = "use_feature"
	ActionAddStaff       ActionKind = "add_staff"
	ActionChangePlan     ActionKind = "change_plan"
)

// Direction направление смены тарифа, заявленное вызывающей стороной
type Direction string

const (
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
)

// Action действие, для которого принимается решение
type Action struct {
	Kind       ActionKind
	Feature    string              // для UseFeature
	Category   models.RoleCategory // для AddStaff
	TargetPlan string              // для ChangePlan
	Direction  Direction           // для ChangePlan
}

// Access общий доступ к ресурсам клиники
func Access() Action {
	return Action{Kind: ActionAccessResource}
}

// Feature использование возможности тарифа
func Feature(name string) Action {
	return Action{Kind: ActionUseFeature, Feature: name}
}

// AddStaffAction добавление сотрудника указанной категории
func AddStaffAction(category models.RoleCategory) Action {
	return Action{Kind: ActionAddStaff, Category: category}
}

// ChangePlanAction переход на другой тариф
func ChangePlanAction(target string, direction Direction) Action {
	return Action{Kind: ActionChangePlan, TargetPlan: target, Direction: direction}
}
