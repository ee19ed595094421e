package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

// ClaudeCLIService runs GM turns through the local claude binary.
// The first turn uses JSON output to capture the CLI's session ID;
// later turns resume that session and stream plain text, so only the
// newest player message needs to be sent.
type ClaudeCLIService struct {
	binary    string
	modelName string
	logger    *slog.Logger
}

// claudeEnvelope is the CLI's --output-format json response. Older
// releases used camelCase for the session field.
type claudeEnvelope struct {
	SessionID    string `json:"session_id"`
	SessionIDAlt string `json:"sessionId"`
	Result       string `json:"result"`
}

func (e claudeEnvelope) sessionID() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.SessionIDAlt
}

func NewClaudeCLIService(modelName string, logger *slog.Logger) *ClaudeCLIService {
	return &ClaudeCLIService{
		binary:    "claude",
		modelName: modelName,
		logger:    logger,
	}
}

func (c *ClaudeCLIService) Name() string {
	return "claude-cli"
}

func (c *ClaudeCLIService) StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult {
	stream := parser.NewStreamer(sink)

	isResume := resumeID != ""
	var prompt string
	if isResume {
		// The CLI session already holds history; send only the latest
		// player message.
		if n := len(history); n > 0 && history[n-1].Role == chat.RoleUser {
			prompt = history[n-1].Content
		}
	} else {
		prompt = "[SYSTEM INSTRUCTIONS - YOU MUST FOLLOW THESE EXACTLY]\n" + systemPrompt +
			"\n[END SYSTEM INSTRUCTIONS]\n\n" + formatHistory(history)
	}

	args := []string{"-p", "--model", c.modelName}
	if isResume {
		args = append(args, "--resume", resumeID, "--output-format", "text")
	} else {
		// JSON output captures the session ID for later resumes. The
		// system prompt goes in both the flag and the prompt body.
		args = append(args, "--output-format", "json", "--system-prompt", systemPrompt)
	}

	c.logger.Debug("claude CLI turn",
		"resume", isResume,
		"session_id", resumeID,
		"prompt_length", len(prompt))

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if isResume {
		if err := streamStdout(cmd, stream); err != nil {
			c.logger.Error("claude CLI failed", "error", err, "stderr", stderr.String())
			stream.Fail("Game master is unavailable. Please try again.")
		}
		result := stream.Finish()
		result.ProviderSessionID = resumeID
		return result
	}

	out, err := cmd.Output()
	if err != nil {
		c.logger.Error("claude CLI failed", "error", err, "stderr", stderr.String())
		stream.Fail("Game master is unavailable. Please try again.")
		return stream.Finish()
	}

	var envelope claudeEnvelope
	sessionID := ""
	if jsonErr := json.Unmarshal(out, &envelope); jsonErr == nil {
		sessionID = envelope.sessionID()
		stream.Write(envelope.Result)
	} else {
		// Treat the output as plain tagged text.
		c.logger.Warn("claude CLI envelope parse failed, treating output as text", "error", jsonErr)
		stream.Write(string(out))
	}

	result := stream.Finish()
	result.ProviderSessionID = sessionID
	return result
}

// streamStdout pipes the child's stdout through the streamer chunk by
// chunk so tagged lines reach the client before the process exits.
func streamStdout(cmd *exec.Cmd, stream *parser.Streamer) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if err := copyToStreamer(stdout, stream); err != nil {
		_ = cmd.Wait()
		return err
	}
	return cmd.Wait()
}

// copyToStreamer forwards r into the streamer in small chunks. Complete
// lines are parsed and emitted as they arrive.
func copyToStreamer(r io.Reader, stream *parser.Streamer) error {
	buf := make([]byte, 4096)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			stream.Write(string(buf[:n]))
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}
