package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadyJoined  = errors.New("agent already joined the room")
	ErrNotParticipant = errors.New("identity is not a participant")
	ErrEmptyMessage   = errors.New("empty message")
)
