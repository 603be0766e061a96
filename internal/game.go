package internal

// Move 出拳
//
// 核心只保證 rock / paper / scissors 的結算；其他字串照樣記錄與轉發，
// 是否拒絕由傳輸層依設定決定（game.strict_moves）。
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// Moves 合法出拳集合
var Moves = []Move{Rock, Paper, Scissors}

// Valid 是否為合法出拳
func (m Move) Valid() bool {
	switch m {
	case Rock, Paper, Scissors:
		return true
	}
	return false
}

// Outcome 回合結果
type Outcome string

const (
	Draw        Outcome = "Draw"
	Player1Wins Outcome = "Player 1 Wins"
	Player2Wins Outcome = "Player 2 Wins"
)

// beats 循環克制關係：石頭 > 剪刀 > 布 > 石頭
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Decide 以 1 號與 2 號玩家的出拳計算結果（純函數）
func Decide(p1, p2 Move) Outcome {
	if p1 == p2 {
		return Draw
	}
	if prey, ok := beats[p1]; ok && prey == p2 {
		return Player1Wins
	}
	return Player2Wins
}
