// Package errors 提供配對服務的錯誤分類
//
// 所有房間相關錯誤都是可恢復的：只回報給發出請求的連接，
// 不會改變共享狀態，也不會向上傳播成程序級錯誤。
package errors

import (
	"errors"
	"fmt"
)

// 錯誤碼
const (
	// ErrCodeRoomNotFound 房間不存在
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeInvalidInviteCode 邀請碼錯誤
	ErrCodeInvalidInviteCode = "INVALID_INVITE_CODE"
	// ErrCodeAlreadyJoined 連接已在房間內
	ErrCodeAlreadyJoined = "ALREADY_JOINED"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeMalformedMessage 無法解析的訊息
	ErrCodeMalformedMessage = "MALFORMED_MESSAGE"
	// ErrCodeUnavailable 連接不可用
	ErrCodeUnavailable = "UNAVAILABLE"
	// ErrCodeConnectionClosed 連接已關閉
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	// ErrCodeSendBufferFull 發送緩衝區已滿
	ErrCodeSendBufferFull = "SEND_BUFFER_FULL"
)

// AppError 應用程式錯誤
//
// Message 是直接回傳給客戶端的文字（error{message}），
// 因此保持與既有客戶端相容的英文字串。
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝底層錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本（預定義錯誤為共享值，不可直接修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrRoomNotFound 房間不存在或已銷毀
	ErrRoomNotFound = New(ErrCodeRoomNotFound, "Room not found")

	// ErrRoomFull 房間已有兩名玩家
	ErrRoomFull = New(ErrCodeRoomFull, "Room is full")

	// ErrInvalidInviteCode 提供的邀請碼不符
	ErrInvalidInviteCode = New(ErrCodeInvalidInviteCode, "Invalid invite code")

	// ErrAlreadyJoined 同一連接重複加入同一房間
	ErrAlreadyJoined = New(ErrCodeAlreadyJoined, "Already in room")

	// ErrInvalidChoice 出拳不在 rock/paper/scissors 之內
	ErrInvalidChoice = New(ErrCodeInvalidInput, "Invalid choice")

	// ErrConnectionClosed 連接已關閉
	ErrConnectionClosed = New(ErrCodeConnectionClosed, "connection closed")

	// ErrSendBufferFull 連接發送緩衝區已滿
	ErrSendBufferFull = New(ErrCodeSendBufferFull, "send buffer full")
)

// Message 取得可回傳給客戶端的訊息；非 AppError 一律回傳通用訊息
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal error"
}

// IsNotFound 檢查是否為房間不存在錯誤
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeRoomNotFound)
}

// IsRoomFull 檢查是否為房間已滿錯誤
func IsRoomFull(err error) bool {
	return hasCode(err, ErrCodeRoomFull)
}

// IsInvalidInviteCode 檢查是否為邀請碼錯誤
func IsInvalidInviteCode(err error) bool {
	return hasCode(err, ErrCodeInvalidInviteCode)
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
