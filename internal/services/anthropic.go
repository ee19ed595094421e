package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicMaxTokens = 2048
)

// AnthropicService streams GM turns from the Anthropic Messages API.
type AnthropicService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewAnthropicService(apiKey string, modelName string, logger *slog.Logger) *AnthropicService {
	return &AnthropicService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		logger: logger,
	}
}

func (a *AnthropicService) Name() string {
	return "anthropic"
}

func (a *AnthropicService) StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult {
	stream := parser.NewStreamer(sink)

	messages := make([]anthropicMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleAssistant {
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 0 {
		stream.Fail("Game master has nothing to respond to.")
		return stream.Finish()
	}

	reqBody := anthropicChatRequest{
		Model:     a.modelName,
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages:  messages,
		System:    systemPrompt,
		Stream:    true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		a.logger.Error("failed to marshal anthropic request", "error", err)
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("anthropic request failed", "error", err)
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		a.logger.Error("anthropic API error",
			"status", resp.StatusCode,
			"body", string(respBody))
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	if err := a.consumeSSE(resp.Body, stream); err != nil {
		a.logger.Error("anthropic stream interrupted", "error", err)
		stream.Fail("Game master response was interrupted.")
	}
	return stream.Finish()
}

// consumeSSE reads the Messages API event stream and forwards
// text_delta fragments to the streamer.
func (a *AnthropicService) consumeSSE(r io.Reader, stream *parser.Streamer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				stream.Write(event.Delta.Text)
			}
		case "error":
			if event.Error != nil {
				return fmt.Errorf("anthropic stream error: %s", event.Error.Message)
			}
			return fmt.Errorf("anthropic stream error")
		case "message_stop":
			return nil
		}
	}
	return scanner.Err()
}
