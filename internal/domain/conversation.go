package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationTurn struct {
	ID        uuid.UUID
	Timestamp time.Time
	User      string
	Bot       string
	// Backend names the analysis backend that produced Bot.
	Backend string
}

func NewConversationTurn(now time.Time, user, bot, backend string) ConversationTurn {
	return ConversationTurn{
		ID:        uuid.New(),
		Timestamp: now,
		User:      user,
		Bot:       bot,
		Backend:   backend,
	}
}

// Truncate shortens s to limit runes, appending "..." when cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}
