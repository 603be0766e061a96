package internal

import (
	"cmp"
	"crypto/rand"
	"log/slog"
	"math/big"
	"slices"
	"sync"

	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
)

// 系統設計問題：
//   多個連接同時建立、加入、出拳、離線時，如何保證房間表與連接索引永遠一致？
//
// 核心挑戰：
//   1. 原子性：加入失敗不能留下半套狀態；人數歸零的房間不能被任何人看到
//   2. 路由：出拳與離線事件只帶連接 ID，需要反查所在房間
//   3. 推送：房間列表只推給「不在房間內」的連接
//
// 設計方案：
//   ✅ Broker 是房間表與連接索引的唯一擁有者，所有事件在同一把鎖內完整執行
//   ✅ 每個 Room 另有自己的 RWMutex，供 HTTP 統計等唯讀路徑使用
//   ✅ 推送透過 Transport 介面（單播 + 條件廣播），Broker 不需要知道連接如何列舉
//   ✅ 發送失敗只記錄日誌，不影響其他收件者

// Transport 傳輸層提供給 Broker 的能力
//
// 實作必須是非阻塞的：Broker 在持有鎖的情況下呼叫這兩個方法。
type Transport interface {
	// Send 發送訊息給單一連接
	Send(conn ConnID, msg Outbound) error
	// Broadcast 發送訊息給所有符合條件的連接；match 會被同步呼叫
	Broadcast(match func(ConnID) bool, msg Outbound)
}

const (
	defaultRoomIDLength     = 6
	defaultInviteCodeLength = 4
	maxRoomIDAttempts       = 64
	codeAlphabet            = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrRoomIDExhausted 連續多次產生的房間 ID 都已被佔用
var ErrRoomIDExhausted = apperrors.New(apperrors.ErrCodeUnavailable, "Could not allocate room")

// BrokerOption Broker 設定選項
type BrokerOption func(*Broker)

// WithCodeLengths 設定房間 ID 與邀請碼長度
func WithCodeLengths(roomIDLength, inviteCodeLength int) BrokerOption {
	return func(b *Broker) {
		if roomIDLength > 0 {
			b.newRoomID = func() string { return randomCode(roomIDLength) }
		}
		if inviteCodeLength > 0 {
			b.newInviteCode = func() string { return randomCode(inviteCodeLength) }
		}
	}
}

// WithRoomIDGenerator 自訂房間 ID 產生器（測試用）
func WithRoomIDGenerator(gen func() string) BrokerOption {
	return func(b *Broker) { b.newRoomID = gen }
}

// WithInviteCodeGenerator 自訂邀請碼產生器（測試用）
func WithInviteCodeGenerator(gen func() string) BrokerOption {
	return func(b *Broker) { b.newInviteCode = gen }
}

// Stats 統計資訊
type Stats struct {
	Rooms          int `json:"total_rooms"`
	WaitingRooms   int `json:"waiting_rooms"`
	ActiveRooms    int `json:"active_rooms"`
	Connections    int `json:"connections"`
	PlayersInRooms int `json:"players_in_rooms"`
	RoundsPlayed   int `json:"rounds_played"`
	RoomsCreated   int `json:"rooms_created"`
	RejectedJoins  int `json:"rejected_joins"`
}

// Broker 房間與連接的唯一管理者
type Broker struct {
	mu        sync.Mutex
	transport Transport
	logger    *slog.Logger

	rooms    map[string]*Room  // roomID -> Room
	connRoom map[ConnID]string // connID -> roomID
	conns    map[ConnID]struct{}

	newRoomID     func() string
	newInviteCode func() string

	roundsPlayed  int
	roomsCreated  int
	rejectedJoins int
}

// NewBroker 創建 Broker
func NewBroker(transport Transport, logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		transport:     transport,
		logger:        logger,
		rooms:         make(map[string]*Room),
		connRoom:      make(map[ConnID]string),
		conns:         make(map[ConnID]struct{}),
		newRoomID:     func() string { return randomCode(defaultRoomIDLength) },
		newInviteCode: func() string { return randomCode(defaultInviteCodeLength) },
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// OnConnect 登記新連接（不屬於任何房間，不回覆）
func (b *Broker) OnConnect(conn ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conns[conn] = struct{}{}
	b.logger.Debug("連接已登記", "conn_id", conn)
}

// OnMessage 依訊息類型分派
func (b *Broker) OnMessage(conn ConnID, msg Inbound) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[conn]; !ok {
		b.logger.Debug("忽略未登記連接的訊息", "conn_id", conn, "type", msg.Type)
		return
	}

	switch msg.Type {
	case TypeCreateRoom:
		b.handleCreateRoom(conn, msg)
	case TypeJoinRoom:
		b.handleJoinRoom(conn, msg)
	case TypeListRooms:
		b.send(conn, NewRoomListMessage(TypeRoomList, b.openRoomsLocked()))
	case TypeChoice:
		b.handleChoice(conn, msg.Choice)
	case TypeInvite:
		b.handleInvite(conn)
	default:
		b.logger.Debug("收到未知消息類型", "type", msg.Type, "conn_id", conn)
	}
}

// OnDisconnect 連接斷開：離開所在房間，必要時銷毀房間
func (b *Broker) OnDisconnect(conn ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, conn)

	if !b.leaveLocked(conn) {
		return
	}
	b.broadcastRoomListLocked()
}

func (b *Broker) handleCreateRoom(conn ConnID, msg Inbound) {
	roomID, err := b.allocateRoomIDLocked()
	if err != nil {
		b.logger.Error("無法分配房間 ID", "conn_id", conn, "error", err)
		b.send(conn, NewErrorMessage(err))
		return
	}

	// 已在其他房間的連接先離開原房間
	b.leaveLocked(conn)

	room := NewRoom(roomID, msg.RoomName, b.newInviteCode())
	slot, err := room.Join(conn)
	if err != nil {
		b.logger.Error("創建者無法加入新房間", "room_id", roomID, "error", err)
		b.send(conn, NewErrorMessage(err))
		return
	}

	b.rooms[roomID] = room
	b.connRoom[conn] = roomID
	b.roomsCreated++

	b.logger.Info("房間已創建",
		"room_id", roomID,
		"name", room.Name,
		"conn_id", conn)

	b.send(conn, RoomCreatedMessage{
		Type:       TypeRoomCreated,
		RoomID:     roomID,
		PlayerID:   slot,
		InviteCode: room.InviteCode,
	})

	b.broadcastRoomListLocked()
}

func (b *Broker) handleJoinRoom(conn ConnID, msg Inbound) {
	room, err := b.admitLocked(conn, msg)
	if err != nil {
		b.rejectedJoins++
		b.logger.Info("加入房間被拒",
			"room_id", msg.RoomID,
			"conn_id", conn,
			"error", err)
		b.send(conn, NewErrorMessage(err))
		return
	}

	b.leaveLocked(conn)

	slot, err := room.Join(conn)
	if err != nil {
		b.send(conn, NewErrorMessage(err))
		return
	}
	b.connRoom[conn] = room.ID

	b.logger.Info("玩家加入房間",
		"room_id", room.ID,
		"conn_id", conn,
		"slot", slot)

	occupants := room.Occupants()
	full := len(occupants) == MaxPlayers
	for _, occ := range occupants {
		b.send(occ.Conn, JoinedRoomMessage{
			Type:              TypeJoinedRoom,
			RoomID:            room.ID,
			PlayerID:          occ.Slot,
			RoomName:          room.Name,
			OpponentConnected: full,
		})
	}

	b.broadcastRoomListLocked()
}

// admitLocked 檢查加入條件，任何失敗都不改變狀態
func (b *Broker) admitLocked(conn ConnID, msg Inbound) (*Room, error) {
	room, ok := b.rooms[msg.RoomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	if _, in := room.SlotOf(conn); in {
		return nil, apperrors.ErrAlreadyJoined
	}
	if room.IsFull() {
		return nil, apperrors.ErrRoomFull
	}
	if msg.InviteCode != "" && msg.InviteCode != room.InviteCode {
		return nil, apperrors.ErrInvalidInviteCode
	}
	return room, nil
}

func (b *Broker) handleChoice(conn ConnID, move Move) {
	room, ok := b.roomOfLocked(conn)
	if !ok {
		return
	}
	slot, ok := room.SlotOf(conn)
	if !ok {
		return
	}

	complete := room.SubmitChoice(slot, move)

	b.sendRoom(room, ChoiceMadeMessage{
		Type:     TypeChoiceMade,
		PlayerID: slot,
		Choice:   move,
	})

	if !complete {
		return
	}

	result := room.Resolve()
	b.roundsPlayed++

	b.logger.Info("回合結算",
		"room_id", room.ID,
		"p1", result.Choices[1],
		"p2", result.Choices[2],
		"result", result.Outcome)

	b.sendRoom(room, ResultMessage{
		Type:    TypeResult,
		Choices: result.Choices,
		Result:  result.Outcome,
	})
}

func (b *Broker) handleInvite(conn ConnID) {
	room, ok := b.roomOfLocked(conn)
	if !ok {
		return
	}

	b.send(conn, InviteGeneratedMessage{
		Type:       TypeInviteGenerated,
		InviteLink: InviteLink(room.ID, room.InviteCode),
	})
}

// leaveLocked 讓連接離開所在房間；返回是否原本在房間內
//
// 人數歸零的房間在同一個臨界區內移除；仍有人的房間通知剩下的玩家。
// 房間列表推送由呼叫端負責。
func (b *Broker) leaveLocked(conn ConnID) bool {
	roomID, ok := b.connRoom[conn]
	if !ok {
		return false
	}
	delete(b.connRoom, conn)

	room, ok := b.rooms[roomID]
	if !ok {
		return true
	}

	remaining := room.Leave(conn)
	if remaining == 0 {
		delete(b.rooms, roomID)
		b.logger.Info("房間已移除", "room_id", roomID)
		return true
	}

	b.logger.Info("玩家離開房間",
		"room_id", roomID,
		"conn_id", conn,
		"remaining", remaining)

	b.sendRoom(room, OpponentDisconnectedMessage{Type: TypeOpponentDisconnected})
	return true
}

func (b *Broker) roomOfLocked(conn ConnID) (*Room, bool) {
	roomID, ok := b.connRoom[conn]
	if !ok {
		return nil, false
	}
	room, ok := b.rooms[roomID]
	return room, ok
}

// allocateRoomIDLocked 產生未被佔用的房間 ID（碰撞時重試）
func (b *Broker) allocateRoomIDLocked() (string, error) {
	for range maxRoomIDAttempts {
		id := b.newRoomID()
		if _, taken := b.rooms[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", ErrRoomIDExhausted
}

// openRoomsLocked 人數未滿的房間，依創建時間排序
func (b *Broker) openRoomsLocked() []RoomSummary {
	open := make([]*Room, 0, len(b.rooms))
	for _, room := range b.rooms {
		if !room.IsFull() {
			open = append(open, room)
		}
	}

	slices.SortFunc(open, func(a, c *Room) int {
		if n := a.CreatedAt.Compare(c.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, c.ID)
	})

	summaries := make([]RoomSummary, 0, len(open))
	for _, room := range open {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// broadcastRoomListLocked 推送最新房間列表給所有不在房間內的連接
func (b *Broker) broadcastRoomListLocked() {
	msg := NewRoomListMessage(TypeRoomListUpdate, b.openRoomsLocked())
	b.transport.Broadcast(func(conn ConnID) bool {
		_, inRoom := b.connRoom[conn]
		return !inRoom
	}, msg)
}

func (b *Broker) send(conn ConnID, msg Outbound) {
	if err := b.transport.Send(conn, msg); err != nil {
		b.logger.Warn("發送訊息失敗",
			"conn_id", conn,
			"type", msg.Kind(),
			"error", err)
	}
}

// sendRoom 發送給房間內所有玩家，單一失敗不影響其他人
func (b *Broker) sendRoom(room *Room, msg Outbound) {
	for _, occ := range room.Occupants() {
		b.send(occ.Conn, msg)
	}
}

// OpenRooms 人數未滿的房間快照
func (b *Broker) OpenRooms() []RoomSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openRoomsLocked()
}

// GetRoom 獲取房間
func (b *Broker) GetRoom(roomID string) (*Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}
	return room, nil
}

// RoomOf 查詢連接所在房間 ID
func (b *Broker) RoomOf(conn ConnID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	roomID, ok := b.connRoom[conn]
	return roomID, ok
}

// Stats 獲取統計資訊
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Rooms:          len(b.rooms),
		Connections:    len(b.conns),
		PlayersInRooms: len(b.connRoom),
		RoundsPlayed:   b.roundsPlayed,
		RoomsCreated:   b.roomsCreated,
		RejectedJoins:  b.rejectedJoins,
	}
	for _, room := range b.rooms {
		switch room.Status() {
		case StatusActive:
			stats.ActiveRooms++
		default:
			stats.WaitingRooms++
		}
	}
	return stats
}

// randomCode 以 crypto/rand 產生大寫英數字代碼
func randomCode(n int) string {
	limit := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand 失敗時退回固定字元，碰撞由呼叫端重試處理
			b[i] = codeAlphabet[i%len(codeAlphabet)]
			continue
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b)
}
