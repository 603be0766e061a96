package internal_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/koopa0/system-design/14-rps-matchmaking/internal"
	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeInbound 測試解析客戶端訊息
func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    internal.Inbound
		wantErr bool
	}{
		{
			name: "create room",
			data: `{"type":"createRoom","roomName":"arena"}`,
			want: internal.Inbound{Type: internal.TypeCreateRoom, RoomName: "arena"},
		},
		{
			name: "join room with invite code",
			data: `{"type":"joinRoom","roomId":"AB12CD","inviteCode":"WXYZ"}`,
			want: internal.Inbound{Type: internal.TypeJoinRoom, RoomID: "AB12CD", InviteCode: "WXYZ"},
		},
		{
			name: "choice",
			data: `{"type":"choice","choice":"paper"}`,
			want: internal.Inbound{Type: internal.TypeChoice, Choice: internal.Paper},
		},
		{
			name: "unknown fields ignored",
			data: `{"type":"listRooms","extra":42}`,
			want: internal.Inbound{Type: internal.TypeListRooms},
		},
		{
			name:    "not json",
			data:    `rock`,
			wantErr: true,
		},
		{
			name:    "missing type",
			data:    `{"roomId":"AB12CD"}`,
			wantErr: true,
		},
		{
			name:    "wrong field type",
			data:    `{"type":"joinRoom","roomId":12}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := internal.DecodeInbound([]byte(tt.data))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, internal.ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestOutbound_JSON 伺服器訊息的 JSON 形狀
func TestOutbound_JSON(t *testing.T) {
	tests := []struct {
		name string
		msg  internal.Outbound
		want string
	}{
		{
			name: "result keyed by player number",
			msg: internal.ResultMessage{
				Type:    internal.TypeResult,
				Choices: map[internal.Slot]internal.Move{1: internal.Rock, 2: internal.Scissors},
				Result:  internal.Player1Wins,
			},
			want: `{"type":"result","choices":{"1":"rock","2":"scissors"},"result":"Player 1 Wins"}`,
		},
		{
			name: "room created",
			msg: internal.RoomCreatedMessage{
				Type:       internal.TypeRoomCreated,
				RoomID:     "AB12CD",
				PlayerID:   1,
				InviteCode: "WXYZ",
			},
			want: `{"type":"roomCreated","roomId":"AB12CD","playerId":1,"inviteCode":"WXYZ"}`,
		},
		{
			name: "joined room",
			msg: internal.JoinedRoomMessage{
				Type:              internal.TypeJoinedRoom,
				RoomID:            "AB12CD",
				PlayerID:          2,
				RoomName:          "Room AB12CD",
				OpponentConnected: true,
			},
			want: `{"type":"joinedRoom","roomId":"AB12CD","playerId":2,"roomName":"Room AB12CD","opponentConnected":true}`,
		},
		{
			name: "empty room list is an array",
			msg:  internal.NewRoomListMessage(internal.TypeRoomListUpdate, nil),
			want: `{"type":"roomListUpdate","rooms":[]}`,
		},
		{
			name: "error",
			msg:  internal.NewErrorMessage(apperrors.ErrRoomFull),
			want: `{"type":"error","message":"Room is full"}`,
		},
		{
			name: "opponent disconnected",
			msg:  internal.OpponentDisconnectedMessage{Type: internal.TypeOpponentDisconnected},
			want: `{"type":"opponentDisconnected"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestNewErrorMessage_HidesInternalErrors(t *testing.T) {
	msg := internal.NewErrorMessage(errors.New("db exploded"))

	assert.Equal(t, internal.TypeError, msg.Kind())
	assert.Equal(t, "Internal error", msg.Message)
}

func TestInviteLink(t *testing.T) {
	assert.Equal(t, "AB12CD:WXYZ", internal.InviteLink("AB12CD", "WXYZ"))
}
