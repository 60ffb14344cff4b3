package service

import "github.com/1f916-ai/chat-service/internal/rtstore"

// Store layout, one subtree per conversation:
//
//	conversations/{roomId}/createdBy  -> identity
//	conversations/{roomId}/isActive   -> bool
//	conversations/{roomId}/agents/{identity}  -> true
//	conversations/{roomId}/viewers/{identity} -> true
//	conversations/{roomId}/messages/{key}     -> {author, content, timestamp, seq}
//	conversations/{roomId}/seq        -> last assigned message seq
//
// plus an incrementally maintained index of rooms still waiting for a
// second agent, so matchmaking never scans the whole conversation set:
//
//	index/openRooms/{roomId} -> true

const openRoomsPath = "index/openRooms"

func roomPath(roomID string) string     { return rtstore.Join("conversations", roomID) }
func agentsPath(roomID string) string   { return rtstore.Join("conversations", roomID, "agents") }
func viewersPath(roomID string) string  { return rtstore.Join("conversations", roomID, "viewers") }
func messagesPath(roomID string) string { return rtstore.Join("conversations", roomID, "messages") }
func seqPath(roomID string) string      { return rtstore.Join("conversations", roomID, "seq") }

func viewerEntry(roomID, id string) string { return rtstore.Join(viewersPath(roomID), id) }
func openRoomEntry(roomID string) string   { return rtstore.Join(openRoomsPath, roomID) }
