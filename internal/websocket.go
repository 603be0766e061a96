package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
)

// 系統設計問題：
//   Broker 只認得連接 ID，如何把它的訊息可靠地送到真正的 WebSocket 上？
//
// 核心挑戰：
//   1. Broker 在持有鎖時發送，傳輸層絕不能阻塞
//   2. 慢客戶端不能拖累同房間或其他連接
//   3. 心跳：檢測死連接（網絡異常、客戶端崩潰）
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接，實作 Transport 介面
//   ✅ 緩衝 channel - Send/Broadcast 只做非阻塞投遞
//   ✅ Ping/Pong 心跳 - 預設 54s / 60s
//   ✅ 讀取結束先註銷再通知 Broker，避免把房間列表推給正在關閉的連接

// SessionHandler 接收連接生命週期事件（由 Broker 實作）
type SessionHandler interface {
	OnConnect(conn ConnID)
	OnMessage(conn ConnID, msg Inbound)
	OnDisconnect(conn ConnID)
}

// WebSocketHub WebSocket 連接中心
type WebSocketHub struct {
	cfg         WebSocketConfig
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	handler     SessionHandler
	connections map[ConnID]*Connection
	mu          sync.RWMutex
}

// Connection WebSocket 連接
type Connection struct {
	ID        ConnID
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(cfg WebSocketConfig, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		connections: make(map[ConnID]*Connection),
	}
}

// Attach 設定事件接收者，必須在 ServeWS 之前呼叫
func (hub *WebSocketHub) Attach(handler SessionHandler) {
	hub.handler = handler
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if hub.handler == nil {
		http.Error(w, "服務尚未就緒", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:       ConnID(uuid.New().String()),
		Conn:     conn,
		Send:     make(chan []byte, hub.cfg.SendBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
	}

	hub.register(connection)
	hub.handler.OnConnect(connection.ID)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// Send 實作 Transport：非阻塞投遞到單一連接
func (hub *WebSocketHub) Send(id ConnID, msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "encode message")
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, ok := hub.connections[id]
	if !ok {
		return apperrors.ErrConnectionClosed
	}
	return conn.enqueue(data)
}

// Broadcast 實作 Transport：投遞給所有符合條件的連接
//
// 單一連接失敗只記錄日誌，繼續投遞其他連接。
func (hub *WebSocketHub) Broadcast(match func(ConnID) bool, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		hub.logger.Error("序列化廣播訊息失敗", "type", msg.Kind(), "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for id, conn := range hub.connections {
		if !match(id) {
			continue
		}
		if err := conn.enqueue(data); err != nil {
			hub.logger.Warn("廣播投遞失敗",
				"conn_id", id,
				"type", msg.Kind(),
				"error", err)
		}
	}
}

// enqueue 非阻塞寫入發送緩衝（呼叫端需持有 hub 讀鎖）
func (c *Connection) enqueue(data []byte) error {
	select {
	case c.Send <- data:
		return nil
	default:
		return apperrors.ErrSendBufferFull
	}
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊連接；返回是否由本次呼叫移除
func (hub *WebSocketHub) unregister(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, ok := hub.connections[conn.ID]
	if !ok || actual != conn {
		return false
	}
	delete(hub.connections, conn.ID)

	// 使用 sync.Once 確保 channel 只關閉一次
	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
	return true
}

// Stop 關閉所有連接
//
// 只關閉底層連接；各自的 readPump 會因讀取失敗而結束並通知 Broker。
func (hub *WebSocketHub) Stop() {
	hub.mu.RLock()
	conns := make([]*Connection, 0, len(hub.connections))
	for _, conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		conn.Conn.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// ConnectionCount 獲取連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// readPump 讀取客戶端消息
//
// 超過 PongWait 沒有收到任何資料（包括 Pong）就關閉連接。
// 結束時先從 Hub 註銷，再通知 Broker 離線。
func (c *Connection) readPump() {
	defer func() {
		if c.Hub.unregister(c) {
			c.Hub.handler.OnDisconnect(c.ID)
		}
		c.Conn.Close()
		c.Hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	}()

	cfg := c.Hub.cfg
	if cfg.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(cfg.MaxMessageSize)
	}

	if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入消息到客戶端，並定期發送 Ping
func (c *Connection) writePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，嘗試發送關閉消息，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err, "conn_id", c.ID)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解析並轉交客戶端消息
//
// 無法解析的訊息直接丟棄，不回覆。
func (c *Connection) handleMessage(data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		c.Hub.logger.Debug("丟棄無法解析的消息",
			"error", err,
			"conn_id", c.ID)
		return
	}

	switch {
	case msg.Type == TypePing:
		if err := c.Hub.Send(c.ID, PongMessage{Type: TypePong}); err != nil {
			c.Hub.logger.Debug("回應 pong 失敗", "error", err, "conn_id", c.ID)
		}
		return
	case msg.Type == TypeChoice && c.Hub.cfg.StrictMoves && !msg.Choice.Valid():
		if err := c.Hub.Send(c.ID, NewErrorMessage(apperrors.ErrInvalidChoice)); err != nil {
			c.Hub.logger.Debug("回覆錯誤失敗", "error", err, "conn_id", c.ID)
		}
		return
	}

	c.Hub.handler.OnMessage(c.ID, msg)
}
