package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chatroom-backend/internal/model"
	"chatroom-backend/internal/realtime"
	"chatroom-backend/internal/repository"
)

const maxUserLength = 255

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUserEmpty       = errors.New("message user is required")
	ErrMessageEmpty    = errors.New("message text is required")
	ErrMessageNotFound = errors.New("message not found")
	ErrStorage         = errors.New("storage failure")
)

// MessageService persists every mutation first and only then announces it to
// connected clients. Broadcast failures never undo a committed mutation.
type MessageService struct {
	store        MessageStore
	broadcaster  Broadcaster
	historyCache HistoryCache
	log          *slog.Logger
	storeTimeout time.Duration
	historyLimit int
}

// NewMessageService accepts a nil historyCache when caching is disabled.
func NewMessageService(
	store MessageStore,
	broadcaster Broadcaster,
	historyCache HistoryCache,
	log *slog.Logger,
	storeTimeout time.Duration,
	historyLimit int,
) *MessageService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	if historyLimit <= 0 || historyLimit > repository.DefaultRecentLimit {
		historyLimit = repository.DefaultRecentLimit
	}
	return &MessageService{
		store:        store,
		broadcaster:  broadcaster,
		historyCache: historyCache,
		log:          log,
		storeTimeout: storeTimeout,
		historyLimit: historyLimit,
	}
}

func (s *MessageService) List(ctx context.Context) ([]model.Message, error) {
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetRecent(ctx); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	messages, err := s.store.ListRecent(storeCtx, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if messages == nil {
		messages = []model.Message{}
	}

	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetRecent(ctx, messages)
		}
	}
	return messages, nil
}

func (s *MessageService) Create(ctx context.Context, user, text string) (*model.Message, error) {
	user = strings.TrimSpace(user)
	text = strings.TrimSpace(text)
	if user == "" {
		return nil, ErrUserEmpty
	}
	if utf8.RuneCountInString(user) > maxUserLength {
		return nil, ErrInvalidInput
	}
	if text == "" {
		return nil, ErrMessageEmpty
	}

	s.invalidateHistory(ctx)
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	message, err := s.store.Create(storeCtx, user, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.broadcast(ctx, realtime.EventChatMessage, message)
	return message, nil
}

// Edit rejects empty text before the store is touched.
func (s *MessageService) Edit(ctx context.Context, id uint, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageEmpty
	}
	if id == 0 {
		return nil, ErrMessageNotFound
	}

	s.invalidateHistory(ctx)
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	message, err := s.store.UpdateText(storeCtx, id, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if message == nil {
		return nil, ErrMessageNotFound
	}

	s.broadcast(ctx, realtime.EventEditMessage, message)
	return message, nil
}

func (s *MessageService) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return ErrMessageNotFound
	}

	s.invalidateHistory(ctx)
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	deleted, err := s.store.Delete(storeCtx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !deleted {
		return ErrMessageNotFound
	}

	s.broadcast(ctx, realtime.EventDeleteMessage, realtime.DeletedMessage{ID: id})
	return nil
}

func (s *MessageService) DeleteAll(ctx context.Context) error {
	s.invalidateHistory(ctx)
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	removed, err := s.store.DeleteAll(storeCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.log.Info("cleared messages", "removed", removed)
	s.broadcast(ctx, realtime.EventClearMessages, nil)
	return nil
}

func (s *MessageService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// broadcast runs after the mutation committed, so it must outlive a caller
// that has already gone away.
func (s *MessageService) broadcast(ctx context.Context, eventType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(context.WithoutCancel(ctx), eventType, payload); err != nil {
		s.log.Error("broadcast failed", "event", eventType, "error", err)
	}
}

func (s *MessageService) invalidateHistory(ctx context.Context) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(ctx); err != nil {
		s.log.Warn("invalidate history cache failed", "error", err)
	}
}
