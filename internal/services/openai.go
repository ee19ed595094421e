package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIService streams GM turns from the OpenAI chat completions API.
type OpenAIService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func NewOpenAIService(apiKey string, modelName string, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		logger: logger,
	}
}

func (o *OpenAIService) Name() string {
	return "openai"
}

func (o *OpenAIService) StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult {
	stream := parser.NewStreamer(sink)

	messages := make([]openAIMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openAIMessage{Role: chat.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(openAIChatRequest{
		Model:    o.modelName,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		o.logger.Error("failed to marshal openai request", "error", err)
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Error("openai request failed", "error", err)
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		o.logger.Error("openai API error",
			"status", resp.StatusCode,
			"body", string(respBody))
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				stream.Write(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		o.logger.Error("openai stream interrupted", "error", err)
		stream.Fail("Game master response was interrupted.")
	}
	return stream.Finish()
}
