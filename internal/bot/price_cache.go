package bot

import (
	"sync"
	"time"
)

// PriceCache - кэш последних известных цен по инструментам
//
// Короткий TTL (по умолчанию 30s): протухшая цена хуже отсутствия
// цены - мониторинг пропускает ордер вместо срабатывания по
// устаревшему значению. Чтение после истечения TTL вычищает запись
// и возвращает "цена недоступна".
//
// Разделяется на чтение/запись между тиком мониторинга и
// оркестратором; одного мьютекса достаточно на этом масштабе.
type PriceCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]priceEntry
}

type priceEntry struct {
	price      float64
	observedAt time.Time
}

// NewPriceCache создаёт кэш с заданным TTL.
// Неположительный TTL заменяется дефолтом 30s.
func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]priceEntry),
	}
}

// Set сохраняет последнее наблюдение цены
func (c *PriceCache) Set(tokenID string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tokenID] = priceEntry{
		price:      price,
		observedAt: time.Now(),
	}
}

// Get возвращает цену если наблюдение в пределах TTL.
// Протухшая запись вычищается, возвращается (0, false).
func (c *PriceCache) Get(tokenID string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tokenID]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}

	if time.Since(entry.observedAt) > c.ttl {
		c.mu.Lock()
		// Перепроверяем под write-локом: запись могла обновиться
		if cur, still := c.entries[tokenID]; still && cur.observedAt == entry.observedAt {
			delete(c.entries, tokenID)
		}
		c.mu.Unlock()
		return 0, false
	}

	return entry.price, true
}

// Len возвращает количество записей (включая возможно протухшие)
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
