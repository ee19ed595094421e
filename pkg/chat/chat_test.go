package chat

import (
	"fmt"
	"testing"
)

func TestTrim(t *testing.T) {
	var history []Message
	for i := 0; i < 60; i++ {
		history = append(history, Message{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
	}

	trimmed := Trim(history, 50)
	if len(trimmed) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(trimmed))
	}
	if trimmed[0].Content != "msg 10" {
		t.Errorf("expected oldest entries dropped, first is %q", trimmed[0].Content)
	}
	if trimmed[49].Content != "msg 59" {
		t.Errorf("expected newest entry kept, last is %q", trimmed[49].Content)
	}
}

func TestTrimUnderLimit(t *testing.T) {
	history := []Message{{Role: RoleUser, Content: "only"}}
	trimmed := Trim(history, 50)
	if len(trimmed) != 1 {
		t.Errorf("expected history untouched, got %d entries", len(trimmed))
	}
}
