package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hash.go - bcrypt-хэширование API ключей ops-эндпоинтов
//
// Ключ в конфигурации хранится только в виде хэша (API_KEY_HASH);
// открытый ключ знает только оператор. Сравнение выполняется
// bcrypt'ом и устойчиво к timing-атакам.

// Стоимость bcrypt по умолчанию. 12 - разумный баланс между
// стойкостью и латентностью проверки (~250ms).
const DefaultCost = 12

// Ошибки
var (
	ErrEmptyKey    = errors.New("api key must not be empty")
	ErrKeyTooLong  = errors.New("api key exceeds 72 bytes (bcrypt limit)")
	ErrKeyMismatch = errors.New("api key does not match hash")
)

// HashAPIKey возвращает bcrypt-хэш API ключа со стоимостью по умолчанию
func HashAPIKey(key string) (string, error) {
	return HashAPIKeyWithCost(key, DefaultCost)
}

// HashAPIKeyWithCost возвращает bcrypt-хэш с заданной стоимостью
func HashAPIKeyWithCost(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	// bcrypt игнорирует байты после 72-го: молчаливое усечение
	// ключа опаснее явной ошибки
	if len(key) > 72 {
		return "", ErrKeyTooLong
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey проверяет ключ против хэша.
// Возвращает ErrKeyMismatch при несовпадении.
func VerifyAPIKey(key, hash string) error {
	if key == "" || hash == "" {
		return ErrKeyMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return fmt.Errorf("failed to verify api key: %w", err)
	}
	return nil
}

// KeyMatches возвращает true если ключ соответствует хэшу
func KeyMatches(key, hash string) bool {
	return VerifyAPIKey(key, hash) == nil
}

// HashCost возвращает стоимость существующего хэша
func HashCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return cost, nil
}
