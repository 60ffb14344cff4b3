package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/metrics"
)

// Client is a thin pass-through to an OpenAI-style chat completions
// endpoint. The upstream is a collaborator, not something designed
// here: one POST, one choice, token usage kept only for the cost
// readout. Every call carries an explicit timeout so a partitioned
// upstream fails loudly instead of hanging a send forever.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiRequest struct {
	Model       string    `json:"model"`
	Messages    []ChatMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete generates the next line for selfID given the room history.
// History is mapped onto chat roles from selfID's seat: own lines are
// "assistant", the peer's are "user".
func (c *Client) Complete(ctx context.Context, cfg Config, selfID string, history []domain.Message) (string, Usage, error) {
	if err := cfg.Validate(); err != nil {
		return "", Usage{}, err
	}

	msgs := cfg.SystemMessages()
	for _, m := range history {
		role := "user"
		if m.Author == selfID {
			role = "assistant"
		}
		msgs = append(msgs, ChatMsg{Role: role, Content: m.Content})
	}

	body, err := json.Marshal(apiRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
	})
	if err != nil {
		return "", Usage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return "", Usage{}, fmt.Errorf("completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", Usage{}, fmt.Errorf("completion: upstream status %d: %s", resp.StatusCode, snippet)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return "", Usage{}, fmt.Errorf("completion: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return "", Usage{}, fmt.Errorf("completion: upstream returned no choices")
	}

	metrics.CompletionCalls.WithLabelValues("ok").Inc()
	metrics.CompletionTokens.Add(float64(out.Usage.TotalTokens))
	return out.Choices[0].Message.Content, out.Usage, nil
}
