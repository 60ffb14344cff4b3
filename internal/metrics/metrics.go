package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_rooms_created_total",
		Help: "Rooms created by the matchmaker.",
	})
	RoomsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_rooms_joined_total",
		Help: "Joins into an existing open room.",
	})
	OpenRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_open_rooms",
		Help: "Rooms currently waiting for a second agent.",
	})
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_relayed_total",
		Help: "Messages appended to room logs.",
	})
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_live_sessions",
		Help: "Currently attached websocket sessions.",
	})
	CompletionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_completion_calls_total",
		Help: "Upstream completion API calls by outcome.",
	}, []string{"outcome"})
	CompletionTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_completion_tokens_total",
		Help: "Total tokens reported by the completion API.",
	})
)
