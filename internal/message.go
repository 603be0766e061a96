package internal

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
)

// MessageType 訊息類型（JSON 的 type 欄位）
type MessageType string

// 客戶端 → 伺服器
const (
	TypeCreateRoom MessageType = "createRoom"
	TypeJoinRoom   MessageType = "joinRoom"
	TypeListRooms  MessageType = "listRooms"
	TypeChoice     MessageType = "choice"
	TypeInvite     MessageType = "invite"
	TypePing       MessageType = "ping"
)

// 伺服器 → 客戶端
const (
	TypeRoomCreated          MessageType = "roomCreated"
	TypeJoinedRoom           MessageType = "joinedRoom"
	TypeError                MessageType = "error"
	TypeRoomList             MessageType = "roomList"
	TypeRoomListUpdate       MessageType = "roomListUpdate"
	TypeChoiceMade           MessageType = "choiceMade"
	TypeResult               MessageType = "result"
	TypeInviteGenerated      MessageType = "inviteGenerated"
	TypeOpponentDisconnected MessageType = "opponentDisconnected"
	TypePong                 MessageType = "pong"
)

// ErrMalformedMessage 無法解析的訊息，呼叫端應直接丟棄
var ErrMalformedMessage = apperrors.New(apperrors.ErrCodeMalformedMessage, "malformed message")

// Inbound 客戶端訊息
//
// 所有類型共用一個扁平結構，未使用的欄位保持零值。
type Inbound struct {
	Type       MessageType `json:"type"`
	RoomName   string      `json:"roomName,omitempty"`
	RoomID     string      `json:"roomId,omitempty"`
	InviteCode string      `json:"inviteCode,omitempty"`
	Choice     Move        `json:"choice,omitempty"`
}

// DecodeInbound 解析客戶端訊息
func DecodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, apperrors.Wrap(err, ErrMalformedMessage.Code, ErrMalformedMessage.Message)
	}
	if msg.Type == "" {
		return Inbound{}, ErrMalformedMessage.WithDetails("missing type")
	}
	return msg, nil
}

// Outbound 伺服器訊息
type Outbound interface {
	Kind() MessageType
}

// RoomSummary 房間列表項目
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
}

// RoomCreatedMessage 房間創建成功（只發給創建者）
type RoomCreatedMessage struct {
	Type       MessageType `json:"type"`
	RoomID     string      `json:"roomId"`
	PlayerID   Slot        `json:"playerId"`
	InviteCode string      `json:"inviteCode"`
}

// JoinedRoomMessage 加入確認（發給房內每位玩家，PlayerID 為收件者自己的編號）
type JoinedRoomMessage struct {
	Type              MessageType `json:"type"`
	RoomID            string      `json:"roomId"`
	PlayerID          Slot        `json:"playerId"`
	RoomName          string      `json:"roomName"`
	OpponentConnected bool        `json:"opponentConnected"`
}

// ErrorMessage 錯誤回覆
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// RoomListMessage 房間列表（roomList 為請求回覆，roomListUpdate 為主動推送）
type RoomListMessage struct {
	Type  MessageType   `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// ChoiceMadeMessage 某位玩家已出拳
type ChoiceMadeMessage struct {
	Type     MessageType `json:"type"`
	PlayerID Slot        `json:"playerId"`
	Choice   Move        `json:"choice"`
}

// ResultMessage 回合結果
type ResultMessage struct {
	Type    MessageType   `json:"type"`
	Choices map[Slot]Move `json:"choices"`
	Result  Outcome       `json:"result"`
}

// InviteGeneratedMessage 邀請連結
type InviteGeneratedMessage struct {
	Type       MessageType `json:"type"`
	InviteLink string      `json:"inviteLink"`
}

// OpponentDisconnectedMessage 對手離線
type OpponentDisconnectedMessage struct {
	Type MessageType `json:"type"`
}

// PongMessage 應用層心跳回覆
type PongMessage struct {
	Type MessageType `json:"type"`
}

func (m RoomCreatedMessage) Kind() MessageType          { return m.Type }
func (m JoinedRoomMessage) Kind() MessageType           { return m.Type }
func (m ErrorMessage) Kind() MessageType                { return m.Type }
func (m RoomListMessage) Kind() MessageType             { return m.Type }
func (m ChoiceMadeMessage) Kind() MessageType           { return m.Type }
func (m ResultMessage) Kind() MessageType               { return m.Type }
func (m InviteGeneratedMessage) Kind() MessageType      { return m.Type }
func (m OpponentDisconnectedMessage) Kind() MessageType { return m.Type }
func (m PongMessage) Kind() MessageType                 { return m.Type }

// NewErrorMessage 由錯誤建立錯誤回覆
func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: apperrors.Message(err)}
}

// NewRoomListMessage 建立房間列表訊息；rooms 為 nil 時輸出空陣列而非 null
func NewRoomListMessage(kind MessageType, rooms []RoomSummary) RoomListMessage {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return RoomListMessage{Type: kind, Rooms: rooms}
}

// InviteLink 組合房間 ID 與邀請碼
func InviteLink(roomID, inviteCode string) string {
	return fmt.Sprintf("%s:%s", roomID, inviteCode)
}
