package internal

import (
	"sync"
	"time"

	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
)

// 系統設計問題：
//   兩人回合制對戰中，如何保證「雙方都出拳才結算」且結算結果不會與殘留出拳同時被觀察到？
//
// 核心挑戰：
//   1. 身分穩定：玩家編號（1 / 2）在房間存續期間不可重新編號
//   2. 回合原子性：結算與清空出拳必須是同一個臨界區
//   3. 中途離線：離開者的出拳不能被當成半個回合結算
//
// 設計方案：
//   ✅ 固定長度陣列 [2]ConnID - 以位置作為玩家編號，離開不會造成重新編號
//   ✅ RWMutex - 讀取（列表、統計）並發，寫入互斥
//   ✅ Resolve 在同一把鎖內計算結果並清空 pending

// RoomStatus 房間狀態
//
//	waiting ⇄ active
//
//   - waiting → active：第二名玩家加入
//   - active → waiting：任一玩家離線
//   - 人數歸零時房間由 Broker 直接銷毀，不存在 "empty" 狀態
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting" // 等待對手
	StatusActive  RoomStatus = "active"  // 兩名玩家到齊
)

// MaxPlayers 每房間玩家上限
const MaxPlayers = 2

// ConnID 傳輸層連接的不透明識別碼
type ConnID string

// Slot 玩家在房間內的編號（1 或 2）
type Slot int

// Occupant 房間內的一名玩家
type Occupant struct {
	Slot Slot
	Conn ConnID
}

// RoundResult 一回合的結算結果
type RoundResult struct {
	Choices map[Slot]Move
	Outcome Outcome
}

// Room 對戰房間
type Room struct {
	ID         string
	Name       string
	InviteCode string
	CreatedAt  time.Time

	mu      sync.RWMutex
	status  RoomStatus
	slots   [MaxPlayers]ConnID // slots[0] 為 1 號玩家，空字串代表空位
	pending map[Slot]Move
	rounds  int
}

// NewRoom 創建新房間，name 為空時使用 "Room <id>"
func NewRoom(id, name, inviteCode string) *Room {
	if name == "" {
		name = "Room " + id
	}
	return &Room{
		ID:         id,
		Name:       name,
		InviteCode: inviteCode,
		CreatedAt:  time.Now(),
		status:     StatusWaiting,
		pending:    make(map[Slot]Move),
	}
}

// Join 讓連接佔用第一個空位（先 1 後 2）
func (r *Room) Join(conn ConnID) (Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.slots {
		if c == conn {
			return 0, apperrors.ErrAlreadyJoined
		}
	}

	for i, c := range r.slots {
		if c != "" {
			continue
		}
		r.slots[i] = conn
		if r.countLocked() == MaxPlayers {
			r.status = StatusActive
		}
		return Slot(i + 1), nil
	}

	return 0, apperrors.ErrRoomFull
}

// Leave 釋放連接佔用的位置，返回剩餘人數
//
// 離開時清空所有未結算的出拳：下一位對手加入後從新回合開始。
func (r *Room) Leave(conn ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.slots {
		if c == conn {
			r.slots[i] = ""
			clear(r.pending)
			break
		}
	}

	if r.countLocked() < MaxPlayers {
		r.status = StatusWaiting
	}
	return r.countLocked()
}

// SubmitChoice 記錄出拳（覆蓋同一玩家先前未結算的出拳）
//
// 只有兩個位置都有人且都已出拳時才返回 true。
func (r *Room) SubmitChoice(slot Slot, move Move) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 1 || int(slot) > MaxPlayers || r.slots[slot-1] == "" {
		return false
	}

	r.pending[slot] = move
	return r.roundCompleteLocked()
}

// Resolve 結算回合並清空出拳
//
// 只能在 SubmitChoice 返回 true 之後呼叫。
func (r *Room) Resolve() RoundResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	choices := make(map[Slot]Move, len(r.pending))
	for slot, move := range r.pending {
		choices[slot] = move
	}

	result := RoundResult{
		Choices: choices,
		Outcome: Decide(choices[1], choices[2]),
	}

	clear(r.pending)
	r.rounds++

	return result
}

// SlotOf 查詢連接在房間內的編號
func (r *Room) SlotOf(conn ConnID) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, c := range r.slots {
		if c != "" && c == conn {
			return Slot(i + 1), true
		}
	}
	return 0, false
}

// Occupants 依編號順序返回房間內的玩家
func (r *Room) Occupants() []Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	occupants := make([]Occupant, 0, MaxPlayers)
	for i, c := range r.slots {
		if c != "" {
			occupants = append(occupants, Occupant{Slot: Slot(i + 1), Conn: c})
		}
	}
	return occupants
}

// PlayerCount 獲取玩家數量
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

// IsFull 房間是否已滿
func (r *Room) IsFull() bool {
	return r.PlayerCount() >= MaxPlayers
}

// Status 獲取房間狀態
func (r *Room) Status() RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// PendingCount 未結算的出拳數
func (r *Room) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Rounds 已結算的回合數
func (r *Room) Rounds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rounds
}

// Summary 房間列表中的一筆資料
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: r.PlayerCount(),
	}
}

func (r *Room) countLocked() int {
	n := 0
	for _, c := range r.slots {
		if c != "" {
			n++
		}
	}
	return n
}

func (r *Room) roundCompleteLocked() bool {
	for i, c := range r.slots {
		if c == "" {
			return false
		}
		if _, ok := r.pending[Slot(i+1)]; !ok {
			return false
		}
	}
	return true
}
