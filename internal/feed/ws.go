package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"polytrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============================================================
// PriceStream - WebSocket поток цен CLOB
// ============================================================
//
// Держит соединение с market-каналом CLOB, автоматически
// переподключается с exponential backoff и восстанавливает
// подписки на инструменты. Каждое обновление цены отдаётся
// в handler; handler обязан быть быстрым (кэш + тик книги).

// StreamConfig - настройки потока цен
type StreamConfig struct {
	URL            string
	InitialDelay   time.Duration // задержка первого переподключения
	MaxDelay       time.Duration // потолок backoff
	MaxRetries     int           // 0 = без лимита
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// DefaultStreamConfig возвращает настройки по умолчанию:
// backoff 2s, 4s, 8s, 16s
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:            url,
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// StreamState - состояние соединения
type StreamState int32

// Состояния потока
const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PriceHandler вызывается на каждое обновление цены
type PriceHandler func(tokenID string, price float64)

// priceMessage - входящее сообщение market-канала
type priceMessage struct {
	EventType string `json:"event_type"` // price_change, book, last_trade_price
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"` // CLOB шлёт цены строками
	Market    string `json:"market,omitempty"`
}

// subscribeMessage - запрос подписки на инструменты
type subscribeMessage struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// PriceStream - клиент market-канала с автопереподключением
type PriceStream struct {
	cfg     StreamConfig
	handler PriceHandler
	log     *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic StreamState
	retryCount int32 // atomic

	tokens   map[string]struct{}
	tokensMu sync.RWMutex

	closeChan chan struct{}
	closeOnce sync.Once
}

// NewPriceStream создаёт поток цен. handler обязателен.
func NewPriceStream(cfg StreamConfig, handler PriceHandler, log *utils.Logger) *PriceStream {
	if log == nil {
		log = utils.L()
	}
	return &PriceStream{
		cfg:       cfg,
		handler:   handler,
		log:       log.WithComponent("price_stream"),
		tokens:    make(map[string]struct{}),
		closeChan: make(chan struct{}),
	}
}

// State возвращает текущее состояние соединения
func (s *PriceStream) State() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

// IsConnected возвращает true для установленного соединения
func (s *PriceStream) IsConnected() bool {
	return s.State() == StreamConnected
}

// Subscribe добавляет инструменты в подписку. На живом
// соединении подписка отправляется сразу, иначе будет
// восстановлена при следующем подключении.
func (s *PriceStream) Subscribe(tokenIDs ...string) error {
	s.tokensMu.Lock()
	added := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, ok := s.tokens[id]; !ok {
			s.tokens[id] = struct{}{}
			added = append(added, id)
		}
	}
	s.tokensMu.Unlock()

	if len(added) == 0 || !s.IsConnected() {
		return nil
	}
	return s.send(subscribeMessage{Type: "market", AssetIDs: added})
}

// Unsubscribe убирает инструменты из восстанавливаемой подписки
func (s *PriceStream) Unsubscribe(tokenIDs ...string) {
	s.tokensMu.Lock()
	for _, id := range tokenIDs {
		delete(s.tokens, id)
	}
	s.tokensMu.Unlock()
}

// Connect устанавливает соединение и запускает чтение
func (s *PriceStream) Connect(ctx context.Context) error {
	select {
	case <-s.closeChan:
		return fmt.Errorf("price stream is closed")
	default:
	}

	atomic.StoreInt32(&s.state, int32(StreamConnecting))

	if err := s.dial(ctx); err != nil {
		atomic.StoreInt32(&s.state, int32(StreamDisconnected))
		return err
	}

	atomic.StoreInt32(&s.state, int32(StreamConnected))
	atomic.StoreInt32(&s.retryCount, 0)

	go s.readPump()
	go s.pingPump()

	s.log.Info("price stream connected", utils.String("url", s.cfg.URL))
	return nil
}

func (s *PriceStream) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if err := s.resubscribe(); err != nil {
		// подписка восстановится при следующем Subscribe
		s.log.Warn("resubscribe failed", utils.Err(err))
	}
	return nil
}

func (s *PriceStream) resubscribe() error {
	s.tokensMu.RLock()
	ids := make([]string, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	s.tokensMu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	if err := s.send(subscribeMessage{Type: "market", AssetIDs: ids}); err != nil {
		return err
	}
	s.log.Info("resubscribed", utils.Int("tokens", len(ids)))
	return nil
}

func (s *PriceStream) send(msg interface{}) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *PriceStream) readPump() {
	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(err)
			return
		}

		s.dispatch(raw)
	}
}

// dispatch разбирает сообщение и отдаёт цену в handler.
// Неизвестные типы событий молча пропускаются.
func (s *PriceStream) dispatch(raw []byte) {
	var msg priceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debug("unparseable stream message", utils.Err(err))
		return
	}
	if msg.AssetID == "" || msg.Price == "" {
		return
	}

	var price float64
	if err := json.UnmarshalFromString(msg.Price, &price); err != nil || price <= 0 {
		return
	}

	if s.handler != nil {
		s.handler(msg.AssetID, price)
	}
}

func (s *PriceStream) pingPump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			if s.State() != StreamConnected {
				return
			}

			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.handleDisconnect(err)
				return
			}
		}
	}
}

func (s *PriceStream) handleDisconnect(err error) {
	select {
	case <-s.closeChan:
		return
	default:
	}

	state := s.State()
	if state == StreamReconnecting || state == StreamClosed {
		return
	}
	atomic.StoreInt32(&s.state, int32(StreamReconnecting))

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if err != nil {
		s.log.Warn("price stream disconnected", utils.Err(err))
	}

	go s.reconnectLoop()
}

func (s *PriceStream) reconnectLoop() {
	delay := s.cfg.InitialDelay

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		attempt := atomic.AddInt32(&s.retryCount, 1)
		if s.cfg.MaxRetries > 0 && int(attempt) > s.cfg.MaxRetries {
			s.log.Error("reconnect attempts exhausted",
				utils.Int("max_retries", s.cfg.MaxRetries),
			)
			atomic.StoreInt32(&s.state, int32(StreamDisconnected))
			return
		}

		s.log.Info("reconnecting price stream",
			utils.Int("attempt", int(attempt)),
			utils.String("delay", delay.String()),
		)

		select {
		case <-s.closeChan:
			return
		case <-time.After(delay):
		}

		if err := s.dial(context.Background()); err != nil {
			s.log.Warn("reconnect failed", utils.Err(err))
			delay *= 2
			if delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&s.state, int32(StreamConnected))
		atomic.StoreInt32(&s.retryCount, 0)
		s.log.Info("price stream reconnected")

		go s.readPump()
		go s.pingPump()
		return
	}
}

// Close закрывает соединение и останавливает переподключение
func (s *PriceStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeChan)
		atomic.StoreInt32(&s.state, int32(StreamClosed))

		s.connMu.Lock()
		defer s.connMu.Unlock()
		if s.conn != nil {
			err = s.conn.Close()
			s.conn = nil
		}
	})
	return err
}
