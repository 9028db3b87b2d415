package policy

import "github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"

// MayWrite решает, может ли автоматическая синхронизация перезаписать группу полей.
//
// force (ручной повторный импорт) разрешает запись всегда. Выключенная
// синхронизация запрещает запись любых полей, включая незаблокированные.
// Иначе запись разрешена, если группа не заблокирована.
func MayWrite(field models.FieldGroup, locks models.LockFlags, syncEnabled, force bool) bool {
	if force {
		return true
	}
	if !syncEnabled {
		return false
	}
	return !locks.Locked(field)
}

// MayWriteIgnoringLocks - вариант MayWrite для импорта с respectLocks=false:
// флаги блокировок не читаются, но выключенная синхронизация по-прежнему
// запрещает запись без force.
func MayWriteIgnoringLocks(syncEnabled, force bool) bool {
	return force || syncEnabled
}

// GroupOf возвращает группу блокировки для имени поля из LastChangedFields
func GroupOf(field string) models.FieldGroup {
	switch field {
	case models.ChangedName, models.ChangedDescription:
		return models.FieldDescription
	case models.ChangedPrice, models.ChangedCostPrice:
		return models.FieldPrice
	case models.ChangedImages:
		return models.FieldImages
	case models.ChangedVariants:
		return models.FieldVariants
	default:
		return models.FieldUnlocked
	}
}
