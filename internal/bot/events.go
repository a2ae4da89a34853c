package bot

import (
	"sync"

	"polytrader/internal/models"
)

// EventBus - явный интерфейс подписки на события ядра
//
// Коллабораторы (персистентность, уведомления, метрики)
// подключаются подпиской и не завязаны на конкретный эмиттер.
// Публикация fire-and-forget: медленный подписчик с полным
// буфером теряет событие (счётчик потерь в метриках), но
// НИКОГДА не блокирует торговый путь.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan *models.Event
	next int
}

// NewEventBus создаёт пустую шину событий
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]chan *models.Event),
	}
}

// Subscribe регистрирует подписчика с буфером buffer.
// Возвращает канал событий и функцию отписки; отписка
// закрывает канал.
func (b *EventBus) Subscribe(buffer int) (<-chan *models.Event, func()) {
	if buffer < 1 {
		buffer = 64
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan *models.Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish рассылает событие всем подписчикам без блокировки
func (b *EventBus) Publish(event *models.Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Буфер подписчика полон - событие отброшено
			RecordEventDropped(string(event.Type))
		}
	}
}

// Subscribers возвращает количество активных подписчиков
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
