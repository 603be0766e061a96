package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-rps-matchmaking/internal"
	"github.com/koopa0/system-design/14-rps-matchmaking/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	url    string
	broker *internal.Broker
	hub    *internal.WebSocketHub
}

func newWSServer(t *testing.T, strict bool, opts ...internal.BrokerOption) *wsServer {
	t.Helper()

	cfg := internal.DefaultConfig()
	cfg.Game.StrictMoves = strict

	hub := internal.NewWebSocketHub(cfg.HubConfig(), logger.Discard())
	broker := internal.NewBroker(hub, logger.Discard(), opts...)
	hub.Attach(broker)

	srv := httptest.NewServer(internal.NewHandler(broker, hub, logger.Discard()).Routes())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})

	return &wsServer{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		broker: broker,
		hub:    hub,
	}
}

func (s *wsServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readNext 讀取下一則訊息
func readNext(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readType 讀取直到出現指定類型（略過其他推送）
func readType(t *testing.T, conn *websocket.Conn, want internal.MessageType) map[string]any {
	t.Helper()
	for {
		msg := readNext(t, conn)
		if msg["type"] == string(want) {
			return msg
		}
	}
}

// TestWebSocket_FullMatch 兩個真實連接完成建房、加入、對戰、離線
func TestWebSocket_FullMatch(t *testing.T) {
	s := newWSServer(t, false,
		internal.WithRoomIDGenerator(sequence("AB12CD")),
		internal.WithInviteCodeGenerator(sequence("WXYZ")))
	p1 := s.dial(t)
	p2 := s.dial(t)

	sendJSON(t, p1, map[string]any{"type": "createRoom", "roomName": "arena"})
	created := readType(t, p1, internal.TypeRoomCreated)
	assert.Equal(t, "AB12CD", created["roomId"])
	assert.Equal(t, float64(1), created["playerId"])
	assert.Equal(t, "WXYZ", created["inviteCode"])

	sendJSON(t, p2, map[string]any{"type": "joinRoom", "roomId": "AB12CD", "inviteCode": "0000"})
	rejected := readType(t, p2, internal.TypeError)
	assert.Equal(t, "Invalid invite code", rejected["message"])

	sendJSON(t, p2, map[string]any{"type": "joinRoom", "roomId": "AB12CD", "inviteCode": "WXYZ"})
	joined2 := readType(t, p2, internal.TypeJoinedRoom)
	assert.Equal(t, float64(2), joined2["playerId"])
	assert.Equal(t, "arena", joined2["roomName"])
	assert.Equal(t, true, joined2["opponentConnected"])

	joined1 := readType(t, p1, internal.TypeJoinedRoom)
	assert.Equal(t, float64(1), joined1["playerId"])
	assert.Equal(t, true, joined1["opponentConnected"])

	sendJSON(t, p1, map[string]any{"type": "choice", "choice": "rock"})
	sendJSON(t, p2, map[string]any{"type": "choice", "choice": "scissors"})

	for _, conn := range []*websocket.Conn{p1, p2} {
		result := readType(t, conn, internal.TypeResult)
		assert.Equal(t, map[string]any{"1": "rock", "2": "scissors"}, result["choices"])
		assert.Equal(t, "Player 1 Wins", result["result"])
	}

	sendJSON(t, p1, map[string]any{"type": "invite"})
	invite := readType(t, p1, internal.TypeInviteGenerated)
	assert.Equal(t, "AB12CD:WXYZ", invite["inviteLink"])

	require.NoError(t, p2.Close())
	readType(t, p1, internal.TypeOpponentDisconnected)

	assert.Eventually(t, func() bool {
		room, err := s.broker.GetRoom("AB12CD")
		return err == nil && room.Status() == internal.StatusWaiting
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWebSocket_RoomListUpdate 大廳中的連接收到列表推送
func TestWebSocket_RoomListUpdate(t *testing.T) {
	s := newWSServer(t, false, internal.WithRoomIDGenerator(sequence("AB12CD")))
	lobby := s.dial(t)
	p1 := s.dial(t)

	// 先完成一次請求，確保 lobby 已登記
	sendJSON(t, lobby, map[string]any{"type": "listRooms"})
	list := readType(t, lobby, internal.TypeRoomList)
	assert.Equal(t, []any{}, list["rooms"])

	sendJSON(t, p1, map[string]any{"type": "createRoom"})
	readType(t, p1, internal.TypeRoomCreated)

	update := readType(t, lobby, internal.TypeRoomListUpdate)
	assert.Equal(t, []any{
		map[string]any{"id": "AB12CD", "name": "Room AB12CD", "playerCount": float64(1)},
	}, update["rooms"])

	// 唯一的玩家離線，房間消失
	require.NoError(t, p1.Close())
	update = readType(t, lobby, internal.TypeRoomListUpdate)
	assert.Equal(t, []any{}, update["rooms"])

	assert.Eventually(t, func() bool {
		return s.hub.ConnectionCount() == 1 && s.broker.Stats().Rooms == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWebSocket_PingAndMalformed 應用層 ping 與丟棄無法解析的訊息
func TestWebSocket_PingAndMalformed(t *testing.T) {
	s := newWSServer(t, false)
	conn := s.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"roomId":"AB12CD"}`)))
	sendJSON(t, conn, map[string]any{"type": "ping"})

	// 無法解析的訊息沒有任何回覆，下一則就是 pong
	msg := readNext(t, conn)
	assert.Equal(t, map[string]any{"type": "pong"}, msg)
}

// TestWebSocket_ChoiceValidation 嚴格模式拒絕非法出拳
func TestWebSocket_ChoiceValidation(t *testing.T) {
	tests := []struct {
		name     string
		strict   bool
		wantType internal.MessageType
	}{
		{"lenient mode forwards unknown move", false, internal.TypeChoiceMade},
		{"strict mode rejects unknown move", true, internal.TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newWSServer(t, tt.strict)
			conn := s.dial(t)

			sendJSON(t, conn, map[string]any{"type": "createRoom"})
			readType(t, conn, internal.TypeRoomCreated)

			sendJSON(t, conn, map[string]any{"type": "choice", "choice": "lizard"})
			msg := readNext(t, conn)

			assert.Equal(t, string(tt.wantType), msg["type"])
			if tt.strict {
				assert.Equal(t, "Invalid choice", msg["message"])
			} else {
				assert.Equal(t, "lizard", msg["choice"])
			}
		})
	}
}

// TestWebSocket_HubNotReady 未掛上 Broker 時拒絕升級
func TestWebSocket_HubNotReady(t *testing.T) {
	hub := internal.NewWebSocketHub(internal.DefaultConfig().HubConfig(), logger.Discard())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	hub.ServeWS(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, hub.ConnectionCount())
}

// TestWebSocket_SendUnknownConnection 發送給不存在的連接
func TestWebSocket_SendUnknownConnection(t *testing.T) {
	hub := internal.NewWebSocketHub(internal.DefaultConfig().HubConfig(), logger.Discard())

	err := hub.Send("ghost", internal.PongMessage{Type: internal.TypePong})

	assert.Error(t, err)
}
