package middleware

import (
	"net/http"

	"polytrader/pkg/crypto"
	"polytrader/pkg/ratelimit"
	"polytrader/pkg/utils"
)

// authLimiter ограничивает частоту проверок ключа: bcrypt дорогой,
// и лимит заодно тормозит перебор ключей
var authLimiter = ratelimit.New(5, 10)

// APIKeyAuth - middleware аутентификации по API ключу
//
// Ключ передается в заголовке X-API-Key и сверяется с bcrypt-хэшем
// из конфигурации. Пустой хэш отключает аутентификацию (development).
func APIKeyAuth(apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !authLimiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			if err := crypto.VerifyAPIKey(key, apiKeyHash); err != nil {
				utils.L().Warn("api key rejected",
					utils.String("remote", r.RemoteAddr),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
