package model

import "time"

// ConversationTurn is a single user/assistant exchange held in the
// session cache. Turns are append-only and expire with the cache TTL.
type ConversationTurn struct {
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewConversationTurn creates a turn stamped with the current time
func NewConversationTurn(userMessage, assistantResponse string) *ConversationTurn {
	return &ConversationTurn{
		UserMessage:       userMessage,
		AssistantResponse: assistantResponse,
		Timestamp:         time.Now().UTC(),
	}
}
