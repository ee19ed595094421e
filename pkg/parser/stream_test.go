package parser

import (
	"testing"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

func TestStreamerReassemblesSplitLines(t *testing.T) {
	var got []protocol.ServerMessage
	s := NewStreamer(func(msg protocol.ServerMessage) {
		got = append(got, msg)
	})

	s.Write("[GM] The gate ")
	if len(got) != 0 {
		t.Fatalf("no message expected before newline, got %+v", got)
	}
	s.Write("grinds open.\n[RO")
	if len(got) != 1 {
		t.Fatalf("expected 1 message after first newline, got %d", len(got))
	}
	s.Write("LL] d20: 11 vs DC 10 - Success\n")

	result := s.Finish()

	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Type != protocol.TypeGM || got[0].Text != "The gate grinds open." {
		t.Errorf("unexpected first message %+v", got[0])
	}
	if got[1].Type != protocol.TypeRoll {
		t.Errorf("unexpected second message %+v", got[1])
	}
	if len(result.Messages) != 2 {
		t.Errorf("result should mirror sink, got %d messages", len(result.Messages))
	}
	if result.RawText != "[GM] The gate grinds open.\n[ROLL] d20: 11 vs DC 10 - Success\n" {
		t.Errorf("unexpected raw text %q", result.RawText)
	}
}

func TestStreamerFinishFlushesTrailingPartial(t *testing.T) {
	var got []protocol.ServerMessage
	s := NewStreamer(func(msg protocol.ServerMessage) {
		got = append(got, msg)
	})

	s.Write("[GM] No trailing newline here")
	if len(got) != 0 {
		t.Fatal("partial line must not emit before Finish")
	}
	s.Finish()
	if len(got) != 1 || got[0].Text != "No trailing newline here" {
		t.Errorf("expected trailing partial flushed, got %+v", got)
	}
}

func TestStreamerCollectsHPChanges(t *testing.T) {
	s := NewStreamer(nil)
	s.Write("[HP:Hero:-5]\n[HP:Lyra:+2]\npartial [HP:Brann:-1]")
	result := s.Finish()

	want := []HPDelta{{"Hero", -5}, {"Lyra", 2}, {"Brann", -1}}
	if len(result.HPChanges) != len(want) {
		t.Fatalf("expected %d hp changes, got %d", len(want), len(result.HPChanges))
	}
	for i, w := range want {
		if result.HPChanges[i] != w {
			t.Errorf("hp change %d = %+v, want %+v", i, result.HPChanges[i], w)
		}
	}
}

func TestStreamerSkipsBlankLines(t *testing.T) {
	s := NewStreamer(nil)
	s.Write("\n\n   \n[GM] One line.\n\n")
	result := s.Finish()
	if len(result.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(result.Messages))
	}
}

func TestStreamerFail(t *testing.T) {
	var got []protocol.ServerMessage
	s := NewStreamer(func(msg protocol.ServerMessage) {
		got = append(got, msg)
	})

	s.Write("[GM] Something started.\n")
	s.Fail("Game master is unavailable. Please try again.")
	result := s.Finish()

	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[1].Type != protocol.TypeError {
		t.Errorf("expected error message, got %+v", got[1])
	}
	if len(result.Messages) != 2 {
		t.Errorf("error must be part of the turn result")
	}
}

func TestStreamerNilSink(t *testing.T) {
	s := NewStreamer(nil)
	s.Write("[GM] Safe without a sink.\n")
	result := s.Finish()
	if len(result.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(result.Messages))
	}
}
