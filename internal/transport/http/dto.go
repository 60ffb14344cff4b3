package http

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type JoinRoomRequest struct {
	ParticipantID string `json:"participant_id"`
}

type JoinRoomResponse struct {
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
	Created       bool   `json:"created"`
}

type RoomResponse struct {
	ID        string    `json:"id"`
	CreatedBy string    `json:"created_by"`
	IsActive  bool      `json:"is_active"`
	Agents    []string  `json:"agents"`
	Viewers   int       `json:"viewers"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageItem struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

type MessagesResponse struct {
	Items []MessageItem `json:"items"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type HistoryResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
