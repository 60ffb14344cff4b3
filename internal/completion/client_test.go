package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1f916-ai/chat-service/internal/domain"
)

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"default shape", `{"model":"gpt-4o","temperature":0.56,"max_tokens":256,"top_p":0.5,"prompt":"hi"}`, true},
		{"messages form", `{"model":"gpt-4o","temperature":0,"max_tokens":1,"top_p":1,"messages":[{"role":"system","content":"x"}]}`, true},
		{"broken json", `{"model":`, false},
		{"missing model", `{"temperature":0.5,"max_tokens":256,"top_p":0.5,"prompt":"hi"}`, false},
		{"temperature too high", `{"model":"m","temperature":1.2,"max_tokens":256,"top_p":0.5,"prompt":"hi"}`, false},
		{"negative top_p", `{"model":"m","temperature":0.5,"max_tokens":256,"top_p":-0.1,"prompt":"hi"}`, false},
		{"zero max_tokens", `{"model":"m","temperature":0.5,"max_tokens":0,"top_p":0.5,"prompt":"hi"}`, false},
		{"no prompt and no messages", `{"model":"m","temperature":0.5,"max_tokens":256,"top_p":0.5}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.raw))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, IsInvalid(err), "must classify as local validation failure")
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestCompleteMapsHistoryOntoRoles(t *testing.T) {
	var captured apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "generated line"}}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", time.Second)
	history := []domain.Message{
		{Author: "agent_abc", Content: "hello"},
		{Author: "agent_xyz", Content: "hi"},
	}
	text, usage, err := c.Complete(context.Background(), DefaultConfig(), "agent_abc", history)
	require.NoError(t, err)
	assert.Equal(t, "generated line", text)
	assert.Equal(t, 15, usage.TotalTokens)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "assistant", captured.Messages[1].Role, "own line")
	assert.Equal(t, "user", captured.Messages[2].Role, "peer line")
	assert.Equal(t, "gpt-4o", captured.Model)
}

func TestCompleteSurfacesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, _, err := c.Complete(context.Background(), DefaultConfig(), "agent_abc", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteRejectsInvalidConfigLocally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	bad := DefaultConfig()
	bad.Temperature = 3
	_, _, err := c.Complete(context.Background(), bad, "agent_abc", nil)
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.Zero(t, calls, "invalid config must never reach the upstream")
}
