package services

import (
	"context"
	"sync"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/parser"
)

// MockGMProvider is a scripted GMProvider for tests and local
// development without any model backend. Each call to StreamTurn pops
// the next scripted response and feeds it through the streamer in
// small chunks to exercise the line reassembly path.
type MockGMProvider struct {
	// Responses are consumed in order; when exhausted, DefaultResponse
	// is used.
	Responses       []string
	DefaultResponse string
	SessionID       string

	// StreamTurnFunc overrides the scripted behavior entirely.
	StreamTurnFunc func(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult

	// Track calls for testing
	Calls []StreamTurnCall

	mu   sync.Mutex
	next int
}

type StreamTurnCall struct {
	SystemPrompt string
	History      []chat.Message
	ResumeID     string
}

func NewMockGMProvider() *MockGMProvider {
	return &MockGMProvider{
		DefaultResponse: "[GM] The corridor stretches into darkness.\n[CHOICE:Press on|Turn back]",
	}
}

func (m *MockGMProvider) Name() string {
	return "mock"
}

func (m *MockGMProvider) StreamTurn(ctx context.Context, systemPrompt string, history []chat.Message, sink parser.Sink, resumeID string) *parser.TurnResult {
	m.mu.Lock()
	m.Calls = append(m.Calls, StreamTurnCall{
		SystemPrompt: systemPrompt,
		History:      append([]chat.Message(nil), history...),
		ResumeID:     resumeID,
	})
	fn := m.StreamTurnFunc
	response := m.DefaultResponse
	if m.next < len(m.Responses) {
		response = m.Responses[m.next]
		m.next++
	}
	sessionID := m.SessionID
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, history, sink, resumeID)
	}

	stream := parser.NewStreamer(sink)
	for len(response) > 0 {
		n := 7
		if n > len(response) {
			n = len(response)
		}
		stream.Write(response[:n])
		response = response[n:]
	}
	result := stream.Finish()
	if sessionID != "" {
		result.ProviderSessionID = sessionID
	}
	return result
}
