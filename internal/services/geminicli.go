package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

// GeminiCLIService runs GM turns through the local gemini binary.
// Same session model as the claude CLI: first turn in JSON mode to
// capture the session ID, resumed turns stream text.
type GeminiCLIService struct {
	binary    string
	modelName string
	logger    *slog.Logger
}

type geminiEnvelope struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

func NewGeminiCLIService(modelName string, logger *slog.Logger) *GeminiCLIService {
	return &GeminiCLIService{
		binary:    "gemini",
		modelName: modelName,
		logger:    logger,
	}
}

func (g *GeminiCLIService) Name() string {
	return "gemini-cli"
}

func (g *GeminiCLIService) StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult {
	stream := parser.NewStreamer(sink)

	isResume := resumeID != ""
	var prompt string
	if isResume {
		if n := len(history); n > 0 && history[n-1].Role == chat.RoleUser {
			prompt = history[n-1].Content
		}
	} else {
		// The gemini CLI has no system prompt flag, so the
		// instructions ride in the prompt body.
		prompt = fmt.Sprintf("[System Instructions - follow these exactly]\n%s\n[End System Instructions]\n\n%s",
			systemPrompt, formatHistory(history))
	}

	args := []string{"-p", prompt, "-m", g.modelName}
	if isResume {
		args = append(args, "-r", resumeID, "-o", "text")
	} else {
		args = append(args, "-o", "json")
	}

	g.logger.Debug("gemini CLI turn",
		"resume", isResume,
		"session_id", resumeID,
		"prompt_length", len(prompt))

	cmd := exec.CommandContext(ctx, g.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if isResume {
		if err := streamStdout(cmd, stream); err != nil {
			g.logger.Error("gemini CLI failed", "error", err, "stderr", stderr.String())
			stream.Fail("Game master is unavailable. Please try again.")
		}
		result := stream.Finish()
		result.ProviderSessionID = resumeID
		return result
	}

	out, err := cmd.Output()
	if err != nil {
		g.logger.Error("gemini CLI failed", "error", err, "stderr", stderr.String())
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	sessionID := ""
	var envelope geminiEnvelope
	if jsonErr := json.Unmarshal(out, &envelope); jsonErr == nil {
		sessionID = envelope.SessionID
		stream.Write(envelope.Response)
	} else {
		g.logger.Warn("gemini CLI envelope parse failed, treating output as text", "error", jsonErr)
		stream.Write(string(out))
	}

	result := stream.Finish()
	result.ProviderSessionID = sessionID
	return result
}
