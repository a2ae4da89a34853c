package bot

import (
	"testing"

	"polytrader/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.OrderStatus
		to   models.OrderStatus
		want bool
	}{
		{"OPEN -> FILLED", models.OrderStatusOpen, models.OrderStatusFilled, true},
		{"OPEN -> CANCELLED", models.OrderStatusOpen, models.OrderStatusCancelled, true},
		{"OPEN -> PARTIALLY_FILLED", models.OrderStatusOpen, models.OrderStatusPartiallyFilled, true},
		{"PARTIALLY_FILLED -> FILLED", models.OrderStatusPartiallyFilled, models.OrderStatusFilled, true},
		{"PARTIALLY_FILLED -> CANCELLED", models.OrderStatusPartiallyFilled, models.OrderStatusCancelled, true},
		{"FILLED терминален", models.OrderStatusFilled, models.OrderStatusCancelled, false},
		{"CANCELLED терминален", models.OrderStatusCancelled, models.OrderStatusFilled, false},
		{"PARTIALLY_FILLED не возвращается в OPEN", models.OrderStatusPartiallyFilled, models.OrderStatusOpen, false},
		{"неизвестный статус", models.OrderStatus("LIMBO"), models.OrderStatusFilled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
