package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================
// Тесты разбора сообщений
// ============================================================

func TestDispatch(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCall  bool
		wantToken string
		wantPrice float64
	}{
		{
			name:      "изменение цены",
			raw:       `{"event_type":"price_change","asset_id":"token-a","price":"0.45"}`,
			wantCall:  true,
			wantToken: "token-a",
			wantPrice: 0.45,
		},
		{
			name:      "последняя сделка",
			raw:       `{"event_type":"last_trade_price","asset_id":"token-b","price":"0.99","market":"0xabc"}`,
			wantCall:  true,
			wantToken: "token-b",
			wantPrice: 0.99,
		},
		{
			name:     "нет asset_id",
			raw:      `{"event_type":"price_change","price":"0.45"}`,
			wantCall: false,
		},
		{
			name:     "нет цены",
			raw:      `{"event_type":"book","asset_id":"token-a"}`,
			wantCall: false,
		},
		{
			name:     "нечисловая цена",
			raw:      `{"event_type":"price_change","asset_id":"token-a","price":"abc"}`,
			wantCall: false,
		},
		{
			name:     "отрицательная цена",
			raw:      `{"event_type":"price_change","asset_id":"token-a","price":"-0.1"}`,
			wantCall: false,
		},
		{
			name:     "невалидный JSON",
			raw:      `{broken`,
			wantCall: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken string
			var gotPrice float64
			called := false

			stream := NewPriceStream(DefaultStreamConfig("ws://unused"), func(tokenID string, price float64) {
				called = true
				gotToken = tokenID
				gotPrice = price
			}, nil)

			stream.dispatch([]byte(tt.raw))

			if called != tt.wantCall {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCall)
			}
			if !tt.wantCall {
				return
			}
			if gotToken != tt.wantToken {
				t.Errorf("token = %q, want %q", gotToken, tt.wantToken)
			}
			if gotPrice != tt.wantPrice {
				t.Errorf("price = %f, want %f", gotPrice, tt.wantPrice)
			}
		})
	}
}

// ============================================================
// Тесты состояния и подписок
// ============================================================

func TestStreamStateString(t *testing.T) {
	tests := []struct {
		state StreamState
		want  string
	}{
		{StreamDisconnected, "disconnected"},
		{StreamConnecting, "connecting"},
		{StreamConnected, "connected"},
		{StreamReconnecting, "reconnecting"},
		{StreamClosed, "closed"},
		{StreamState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSubscribeOffline(t *testing.T) {
	stream := NewPriceStream(DefaultStreamConfig("ws://unused"), func(string, float64) {}, nil)

	// На закрытом соединении подписка только запоминается
	if err := stream.Subscribe("token-a", "token-b", "token-a"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	stream.tokensMu.RLock()
	count := len(stream.tokens)
	stream.tokensMu.RUnlock()
	if count != 2 {
		t.Errorf("expected 2 tracked tokens, got %d", count)
	}

	stream.Unsubscribe("token-a")

	stream.tokensMu.RLock()
	_, stillThere := stream.tokens["token-a"]
	stream.tokensMu.RUnlock()
	if stillThere {
		t.Error("token-a was not unsubscribed")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	stream := NewPriceStream(DefaultStreamConfig("ws://unused"), func(string, float64) {}, nil)

	if err := stream.send(subscribeMessage{Type: "market"}); err == nil {
		t.Error("send without connection should fail")
	}
}

func TestCloseIdempotent(t *testing.T) {
	stream := NewPriceStream(DefaultStreamConfig("ws://unused"), func(string, float64) {}, nil)

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if stream.State() != StreamClosed {
		t.Errorf("state = %v, want closed", stream.State())
	}

	if err := stream.Connect(context.Background()); err == nil {
		t.Error("Connect after Close should fail")
	}
}

// ============================================================
// Интеграционные тесты с live WebSocket сервером
// ============================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer поднимает тестовый WebSocket сервер, который на
// подписку market отвечает обновлением цены каждого инструмента
func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg subscribeMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			for _, id := range msg.AssetIDs {
				conn.WriteJSON(priceMessage{
					EventType: "price_change",
					AssetID:   id,
					Price:     "0.55",
				})
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStreamConnectAndReceive(t *testing.T) {
	server := newWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var mu sync.Mutex
	received := make(map[string]float64)

	cfg := DefaultStreamConfig(wsURL)
	stream := NewPriceStream(cfg, func(tokenID string, price float64) {
		mu.Lock()
		received[tokenID] = price
		mu.Unlock()
	}, nil)
	defer stream.Close()

	if err := stream.Subscribe("token-a", "token-b"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := stream.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !stream.IsConnected() {
		t.Error("expected connected state")
	}

	// Подписка восстанавливается при подключении, сервер шлёт цены
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(received) == 2
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for price updates")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if received["token-a"] != 0.55 {
		t.Errorf("token-a price = %f, want 0.55", received["token-a"])
	}
}

func TestStreamSubscribeWhileConnected(t *testing.T) {
	server := newWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var mu sync.Mutex
	received := make(map[string]float64)

	stream := NewPriceStream(DefaultStreamConfig(wsURL), func(tokenID string, price float64) {
		mu.Lock()
		received[tokenID] = price
		mu.Unlock()
	}, nil)
	defer stream.Close()

	if err := stream.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Подписка на живом соединении отправляется сразу
	if err := stream.Subscribe("token-c"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		_, ok := received["token-c"]
		mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for token-c update")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
