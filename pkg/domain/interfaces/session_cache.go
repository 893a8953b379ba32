package interfaces

import (
	"context"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
)

// SessionStats reports the state of the session cache
type SessionStats struct {
	ActiveConversations int
	TTLHours            int
}

// SessionCache defines the interface for short-lived conversational
// memory. Entries are namespaced per user and expire automatically
// after the configured TTL.
type SessionCache interface {
	// Append adds a turn to the user's conversation history and
	// refreshes the TTL
	Append(ctx context.Context, user types.UserID, turn *model.ConversationTurn) error

	// Recent retrieves up to limit most-recent turns, newest first
	Recent(ctx context.Context, user types.UserID, limit int) ([]*model.ConversationTurn, error)

	// Clear removes all session data for the user
	Clear(ctx context.Context, user types.UserID) error

	// Stats reports cache-wide statistics
	Stats(ctx context.Context) (*SessionStats, error)

	Close() error
}
