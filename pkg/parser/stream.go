package parser

import (
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

// Sink receives messages as they are parsed, so clients see narration
// progressively while the provider is still streaming.
type Sink func(protocol.ServerMessage)

// TurnResult is everything one full GM turn produced. RawText is the
// exact pre-parse provider output; it is what goes into conversation
// history so the model's context window sees what it generated.
type TurnResult struct {
	Messages          []protocol.ServerMessage
	HPChanges         []HPDelta
	RawText           string
	ProviderSessionID string
}

// Streamer accumulates raw provider chunks, parses each completed
// newline-delimited line immediately, and emits resulting messages
// through the sink. Any trailing partial line is parsed on Finish.
type Streamer struct {
	sink    Sink
	pending strings.Builder
	raw     strings.Builder
	result  TurnResult
}

func NewStreamer(sink Sink) *Streamer {
	if sink == nil {
		sink = func(protocol.ServerMessage) {}
	}
	return &Streamer{sink: sink}
}

// Write consumes one raw chunk. Chunk boundaries carry no meaning:
// lines may be split anywhere, including mid-rune only at chunk joins
// made by the caller (providers deliver whole-rune chunks).
func (s *Streamer) Write(chunk string) {
	s.raw.WriteString(chunk)
	s.pending.WriteString(chunk)

	buf := s.pending.String()
	for {
		idx := strings.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if line != "" {
			s.emitLine(line)
		}
	}
	s.pending.Reset()
	s.pending.WriteString(buf)
}

// Fail records a provider failure as a single error message. The turn
// still resolves with whatever was parsed before the failure.
func (s *Streamer) Fail(text string) {
	s.emit(protocol.Error(text))
}

// Finish parses any remaining partial line and returns the turn result.
func (s *Streamer) Finish() *TurnResult {
	if line := strings.TrimSpace(s.pending.String()); line != "" {
		s.emitLine(line)
	}
	s.pending.Reset()
	s.result.RawText = s.raw.String()
	return &s.result
}

func (s *Streamer) emitLine(line string) {
	for _, r := range ParseLine(line) {
		if r.Message != nil {
			s.emit(*r.Message)
		}
		if r.HP != nil {
			s.result.HPChanges = append(s.result.HPChanges, *r.HP)
		}
	}
}

func (s *Streamer) emit(msg protocol.ServerMessage) {
	s.result.Messages = append(s.result.Messages, msg)
	s.sink(msg)
}
