// Package ai produces assistant replies for the development backend. With
// Ark credentials configured it runs a real model chain; without them it
// falls back to canned replies so the client remains testable offline.
package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/irdop/limschat/internal/config"
	"github.com/irdop/limschat/internal/model/chat"
)

const systemPrompt = "You are the laboratory information assistant for irdop.org. " +
	"Answer questions about samples, analytes and test results concisely. " +
	"When you are not sure, say so instead of inventing measurements."

// Service generates replies. A nil chain means canned mode.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the reply service. Missing credentials are not an
// error; the service degrades to canned replies.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	if !cfg.Enabled() {
		log.Printf("[ai] no model credentials, serving canned replies")
		return &Service{}, nil
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// Reply generates one assistant turn given the branch history and the new
// user message.
func (s *Service) Reply(ctx context.Context, history []chat.Message, userMessage string) (string, error) {
	if s.chain == nil {
		return cannedReply(userMessage), nil
	}

	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistory(history),
		"query":   userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated reply, history=%d, length=%d", len(history), len(response.Content))
	return response.Content, nil
}

func buildHistory(messages []chat.Message) []*schema.Message {
	const historyLimit = 10

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

func cannedReply(userMessage string) string {
	if userMessage == "" {
		return "I did not catch that. Could you rephrase?"
	}
	return fmt.Sprintf("Development backend is running without model credentials. You asked: %q", userMessage)
}
