package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

// GMProvider generates one game master turn as a stream of tagged
// lines. Implementations push raw text chunks through a parser.Streamer
// built on sink and always return a TurnResult: provider failures are
// reported in-band as an error message on the stream, never as a Go
// error to the caller.
type GMProvider interface {
	// Name identifies the provider in logs and the health endpoint.
	Name() string

	// StreamTurn runs a single turn. resumeID carries the provider's
	// own conversation handle from the previous turn, empty on the
	// first turn. Providers that keep no server-side state ignore it
	// and rely on history instead.
	StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult
}

// formatHistory flattens prior turns into a transcript block for
// providers that cannot resume a server-side conversation.
func formatHistory(history []chat.Message) string {
	if len(history) == 0 {
		return ""
	}
	parts := make([]string, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			parts = append(parts, fmt.Sprintf("[Player]: %s", msg.Content))
		case chat.RoleAssistant:
			parts = append(parts, fmt.Sprintf("[Previous GM Response]:\n%s", msg.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}
