//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
package app

import (
	"context"

	"chatroom-backend/internal/model"
)

type MessageStore interface {
	ListRecent(ctx context.Context, limit int) ([]model.Message, error)
	Create(ctx context.Context, user, text string) (*model.Message, error)
	UpdateText(ctx context.Context, id uint, text string) (*model.Message, error)
	Delete(ctx context.Context, id uint) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Broadcaster delivers an event to every connected client, either directly
// through the hub or through the relay queue.
type Broadcaster interface {
	Broadcast(ctx context.Context, eventType string, payload interface{}) error
}

type HistoryCache interface {
	GetRecent(ctx context.Context) ([]model.Message, bool, error)
	SetRecent(ctx context.Context, messages []model.Message) error
	Invalidate(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
}
