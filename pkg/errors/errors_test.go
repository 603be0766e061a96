package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/koopa0/system-design/14-rps-matchmaking/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same predefined error",
			err:    apperrors.ErrRoomFull,
			target: apperrors.ErrRoomFull,
			want:   true,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("join: %w", apperrors.ErrRoomNotFound),
			target: apperrors.ErrRoomNotFound,
			want:   true,
		},
		{
			name:   "different code",
			err:    apperrors.ErrRoomFull,
			target: apperrors.ErrInvalidInviteCode,
			want:   false,
		},
		{
			name:   "details keep the code",
			err:    apperrors.ErrRoomNotFound.WithDetails("AB12CD"),
			target: apperrors.ErrRoomNotFound,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stderrors.Is(tt.err, tt.target))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[ROOM_FULL] Room is full", apperrors.ErrRoomFull.Error())

	wrapped := apperrors.Wrap(stderrors.New("broken pipe"), apperrors.ErrCodeUnavailable, "send failed")
	assert.Equal(t, "[UNAVAILABLE] send failed: broken pipe", wrapped.Error())
	assert.EqualError(t, stderrors.Unwrap(wrapped), "broken pipe")
}

func TestWithDetails_DoesNotMutateShared(t *testing.T) {
	detailed := apperrors.ErrRoomFull.WithDetails("room ZZ99ZZ")

	assert.Equal(t, "room ZZ99ZZ", detailed.Details)
	assert.Empty(t, apperrors.ErrRoomFull.Details)
}

func TestHelpers(t *testing.T) {
	assert.True(t, apperrors.IsNotFound(apperrors.ErrRoomNotFound))
	assert.True(t, apperrors.IsRoomFull(fmt.Errorf("x: %w", apperrors.ErrRoomFull)))
	assert.True(t, apperrors.IsInvalidInviteCode(apperrors.ErrInvalidInviteCode))
	assert.False(t, apperrors.IsNotFound(stderrors.New("other")))

	assert.Equal(t, "Invalid invite code", apperrors.Message(apperrors.ErrInvalidInviteCode))
	assert.Equal(t, "Internal error", apperrors.Message(stderrors.New("boom")))
}
