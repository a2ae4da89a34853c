package bot

import "polytrader/internal/models"

// ValidTransitions определяет допустимые переходы статусов ордера.
// FILLED и CANCELLED терминальны: из них переходов нет.
var ValidTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusOpen: {
		models.OrderStatusPartiallyFilled,
		models.OrderStatusFilled,
		models.OrderStatusCancelled,
	},
	models.OrderStatusPartiallyFilled: {
		models.OrderStatusFilled,
		models.OrderStatusCancelled,
	},
	models.OrderStatusFilled:    {}, // терминальный
	models.OrderStatusCancelled: {}, // терминальный
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.OrderStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание статуса для API
func StateInfo(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusOpen:
		return "Ордер открыт, условие отслеживается"
	case models.OrderStatusPartiallyFilled:
		return "Ордер частично исполнен"
	case models.OrderStatusFilled:
		return "Ордер исполнен"
	case models.OrderStatusCancelled:
		return "Ордер отменён"
	default:
		return "Неизвестный статус"
	}
}
