package domain

import "errors"

type (
	RoomName string
	RoomID   string
)

const MaxRoomNameLen = 40

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type Room struct {
	ID        RoomID   `json:"id"`
	Name      RoomName `json:"name"`
	CreatedBy string   `json:"created_by"`
	CreatedAt int64    `json:"created_at"`
}

// RoomInfo is a directory listing entry: room meta plus the live
// presence count shown in the lobby.
type RoomInfo struct {
	Room
	ParticipantCount int `json:"participant_count"`
}

func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
