package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/irdop/limschat/internal/config"
	"github.com/irdop/limschat/internal/model/chat"
)

func TestNewServiceWithoutCredentials(t *testing.T) {
	svc, err := NewService(context.Background(), config.AIConfig{})
	if err != nil {
		t.Fatalf("NewService should degrade, not fail: %v", err)
	}

	reply, err := svc.Reply(context.Background(), nil, "list analytes for S-1")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !strings.Contains(reply, "list analytes for S-1") {
		t.Fatalf("canned reply should echo the question, got %q", reply)
	}
}

func TestBuildHistoryLimitsAndFilters(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < 12; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		msgs = append(msgs, chat.Message{Role: role, Content: "turn"})
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: "ignored"})

	history := buildHistory(msgs)
	if len(history) != 9 {
		t.Fatalf("expected 9 history entries after limit and role filter, got %d", len(history))
	}
}
