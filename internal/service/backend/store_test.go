package backend

import (
	"context"
	"testing"

	"github.com/irdop/limschat/internal/model/chat"
)

func appendTurn(t *testing.T, s *Store, ctxID, anchor, text, reply string) (chat.Message, chat.Message) {
	t.Helper()
	user, bot, err := s.AppendTurn(context.Background(), ctxID, anchor,
		chat.Message{Content: text}, reply, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("AppendTurn(%q, %q): %v", ctxID, anchor, err)
	}
	return user, bot
}

func TestAppendTurnCreatesContext(t *testing.T) {
	s := New()
	user, bot := appendTurn(t, s, "", "", "what is the pH of sample S-42?", "7.2")

	if user.ContextID == "" || user.ContextID != bot.ContextID {
		t.Fatalf("both turns should share a fresh contextId: %q vs %q", user.ContextID, bot.ContextID)
	}
	if bot.PrevMessID != user.MessageID {
		t.Fatalf("reply chain broken: bot.prev = %q, user = %q", bot.PrevMessID, user.MessageID)
	}
	if len(user.RepByMessIDs) != 1 || user.RepByMessIDs[0] != bot.MessageID {
		t.Fatalf("user should list the reply as its child, got %v", user.RepByMessIDs)
	}

	ctxs := s.ListContexts(context.Background())
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 context, got %d", len(ctxs))
	}
	if ctxs[0].Title != "what is the pH of sample S-42?" {
		t.Fatalf("title = %q", ctxs[0].Title)
	}
}

func TestListContextsMostRecentFirst(t *testing.T) {
	s := New()
	first, _ := appendTurn(t, s, "", "", "first", "a")
	second, _ := appendTurn(t, s, "", "", "second", "b")

	ctxs := s.ListContexts(context.Background())
	if len(ctxs) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(ctxs))
	}
	if ctxs[0].ContextID != second.ContextID || ctxs[1].ContextID != first.ContextID {
		t.Fatalf("expected newest first, got %q then %q", ctxs[0].ContextID, ctxs[1].ContextID)
	}
}

func TestGetContextLinearChain(t *testing.T) {
	s := New()
	u1, b1 := appendTurn(t, s, "", "", "one", "1")
	u2, b2 := appendTurn(t, s, u1.ContextID, b1.MessageID, "two", "2")

	got, err := s.GetContext(context.Background(), u1.ContextID, "")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	want := []string{u1.MessageID, b1.MessageID, u2.MessageID, b2.MessageID}
	assertIDs(t, got.OrderedMessageIDs(), want)
}

func TestGetContextBranchFork(t *testing.T) {
	s := New()
	u1, b1 := appendTurn(t, s, "", "", "one", "1")
	u2, b2 := appendTurn(t, s, u1.ContextID, b1.MessageID, "two", "2")
	// Fork from b1: a second child alongside u2.
	u3, b3 := appendTurn(t, s, u1.ContextID, b1.MessageID, "two again", "2'")

	// Default walk follows the newest fork.
	got, err := s.GetContext(context.Background(), u1.ContextID, "")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	assertIDs(t, got.OrderedMessageIDs(), []string{u1.MessageID, b1.MessageID, u3.MessageID, b3.MessageID})

	// Anchoring at the older branch pins the walk to it.
	got, err = s.GetContext(context.Background(), u1.ContextID, b2.MessageID)
	if err != nil {
		t.Fatalf("GetContext anchored: %v", err)
	}
	assertIDs(t, got.OrderedMessageIDs(), []string{u1.MessageID, b1.MessageID, u2.MessageID, b2.MessageID})

	// The fork point carries both children as siblings.
	msgs := s.GetMessages(context.Background(), []string{b1.MessageID})
	if len(msgs) != 1 {
		t.Fatalf("expected the fork message, got %d", len(msgs))
	}
	assertIDs(t, msgs[0].RepByMessIDs, []string{u2.MessageID, u3.MessageID})
}

func TestGetContextUnknown(t *testing.T) {
	s := New()
	if _, err := s.GetContext(context.Background(), "nope", ""); err != ErrContextNotFound {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}

	u1, _ := appendTurn(t, s, "", "", "one", "1")
	if _, err := s.GetContext(context.Background(), u1.ContextID, "ghost"); err != ErrMessageNotFound {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestGetMessagesSkipsUnknownIDs(t *testing.T) {
	s := New()
	u1, b1 := appendTurn(t, s, "", "", "one", "1")

	msgs := s.GetMessages(context.Background(), []string{u1.MessageID, "ghost", b1.MessageID})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 resolved messages, got %d", len(msgs))
	}
	if msgs[0].MessageID != u1.MessageID || msgs[1].MessageID != b1.MessageID {
		t.Fatalf("resolution order wrong: %q, %q", msgs[0].MessageID, msgs[1].MessageID)
	}
}

func TestAppendTurnUnknownContext(t *testing.T) {
	s := New()
	if _, _, err := s.AppendTurn(context.Background(), "missing", "",
		chat.Message{Content: "hi"}, "yo", "m"); err != ErrContextNotFound {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("id sequence length %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("id[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}
