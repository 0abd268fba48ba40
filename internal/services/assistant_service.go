// internal/services/assistant_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/campushub/backend/pkg/assistant"
)

// maxHistoryTurns bounds the history forwarded to the model.
const maxHistoryTurns = 20

const assistantSystemPrompt = `You are the CampusHub assistant. CampusHub is a marketplace for university students where they find jobs and internships and buy and sell items.
Payments are held in escrow until the buyer confirms delivery: the seller releases the funds or the buyer asks for a refund. Students can pay by card, mobile money or crypto.
Students earn tokens for signing up, verifying their email, completing their profile, posting their first listing and a daily claim.
Answer briefly and helpfully. Never ask for passwords, card numbers or wallet private keys.`

type ChatTurn struct {
	Role    assistant.Role `json:"role" validate:"required,oneof=user assistant"`
	Content string         `json:"content" validate:"required,max=4000"`
}

type ChatRequest struct {
	Message string     `json:"message" validate:"required,min=1,max=4000"`
	History []ChatTurn `json:"history,omitempty" validate:"max=50,dive"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type AssistantService struct {
	client AssistantClient
}

func NewAssistantService(client AssistantClient) *AssistantService {
	return &AssistantService{client: client}
}

// Chat forwards the conversation and returns the model's reply. Errors wrap
// assistant.ErrUnavailable when the model cannot answer.
func (s *AssistantService) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: no client configured", assistant.ErrUnavailable)
	}

	reply, err := s.client.Complete(ctx, assistantSystemPrompt, conversation(req))
	if err != nil {
		logrus.WithError(err).Warn("Assistant request failed")
		return nil, err
	}
	return &ChatResponse{Reply: strings.TrimSpace(reply)}, nil
}

// conversation keeps the most recent turns, drops a leading assistant turn
// and appends the new message. The model requires the first turn to come
// from the user.
func conversation(req *ChatRequest) []assistant.Message {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for len(history) > 0 && history[0].Role != assistant.RoleUser {
		history = history[1:]
	}

	messages := make([]assistant.Message, 0, len(history)+1)
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, assistant.Message{Role: turn.Role, Content: content})
	}
	return append(messages, assistant.Message{Role: assistant.RoleUser, Content: strings.TrimSpace(req.Message)})
}
