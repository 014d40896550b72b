package ports

import (
	"context"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

// Platform is the chat platform collaborator. Implementations bound every call
// by a timeout and wrap failures in domain.ErrPlatform; a message that no
// longer exists is reported as domain.ErrNotFound.
type Platform interface {
	GetThread(ctx context.Context, threadID string) (domain.ThreadInfo, error)
	PostMessage(ctx context.Context, threadID, content string) (string, error)
	EditMessage(ctx context.Context, threadID, messageID, content string) error
	DeleteMessage(ctx context.Context, threadID, messageID string) error
	PinMessage(ctx context.Context, threadID, messageID string) error
	UnpinMessage(ctx context.Context, threadID, messageID string) error
}
