package app

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatroom-backend/internal/app/mocks"
	"chatroom-backend/internal/model"
	"chatroom-backend/internal/realtime"
	"chatroom-backend/internal/repository"
)

func newSQLiteStore(t *testing.T) *repository.MessageRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Message{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewMessageRepository(db)
}

func newService(store MessageStore, broadcaster Broadcaster, cache HistoryCache) *MessageService {
	return NewMessageService(store, broadcaster, cache, logs.GetLoggerFromLevel(slog.LevelError), time.Second, 30)
}

func TestMessageService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist then broadcast the stored message", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		svc := newService(newSQLiteStore(t), broadcaster, nil)

		var broadcasted interface{}
		broadcaster.EXPECT().
			Broadcast(gomock.Any(), realtime.EventChatMessage, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, payload interface{}) error {
				broadcasted = payload
				return nil
			}).
			Times(1)

		msg, err := svc.Create(ctx, "alice", "hi")
		req.NoError(err)
		req.EqualValues(1, msg.ID)
		req.Equal("alice", msg.User)
		req.Equal("hi", msg.Text)
		req.False(msg.Timestamp.IsZero())
		req.Equal(msg, broadcasted)
	})

	t.Run("should assign increasing ids visible in the listing", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		svc := newService(newSQLiteStore(t), broadcaster, nil)

		var lastID uint
		for _, text := range []string{"one", "two", "three"} {
			msg, err := svc.Create(ctx, "bob", text)
			req.NoError(err)
			req.Greater(msg.ID, lastID)
			lastID = msg.ID
		}

		listed, err := svc.List(ctx)
		req.NoError(err)
		req.Len(listed, 3)
		req.Equal(lastID, listed[len(listed)-1].ID)
	})

	t.Run("should reject empty input before touching the store", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		svc := newService(store, broadcaster, nil)

		_, err := svc.Create(ctx, "  ", "hi")
		req.ErrorIs(err, ErrUserEmpty)
		_, err = svc.Create(ctx, "alice", "")
		req.ErrorIs(err, ErrMessageEmpty)
	})

	t.Run("should not broadcast when the store fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store.EXPECT().Create(gomock.Any(), "alice", "hi").Return(nil, errors.New("connection refused"))
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		svc := newService(store, broadcaster, nil)

		_, err := svc.Create(ctx, "alice", "hi")
		req.ErrorIs(err, ErrStorage)
		req.ErrorContains(err, "connection refused")
	})

	t.Run("should keep the stored message when broadcasting fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Return(realtime.ErrHubClosed)
		svc := newService(newSQLiteStore(t), broadcaster, nil)

		msg, err := svc.Create(ctx, "alice", "hi")
		req.NoError(err)
		req.NotZero(msg.ID)
	})
}

func TestMessageService_Edit(t *testing.T) {
	ctx := context.Background()

	t.Run("should update the row and broadcast the full message", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store := newSQLiteStore(t)
		svc := newService(store, broadcaster, nil)

		created, err := store.Create(ctx, "alice", "hi")
		req.NoError(err)

		broadcaster.EXPECT().
			Broadcast(gomock.Any(), realtime.EventEditMessage, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, payload interface{}) error {
				msg, ok := payload.(*model.Message)
				req.True(ok)
				req.Equal(created.ID, msg.ID)
				req.Equal("alice", msg.User)
				req.Equal("hi there", msg.Text)
				return nil
			})

		updated, err := svc.Edit(ctx, created.ID, "hi there")
		req.NoError(err)
		req.Equal("hi there", updated.Text)

		listed, err := store.ListRecent(ctx, 30)
		req.NoError(err)
		req.Equal("hi there", listed[0].Text)
	})

	t.Run("should reject empty text and leave the store unchanged", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store.EXPECT().UpdateText(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		svc := newService(store, broadcaster, nil)

		_, err := svc.Edit(ctx, 1, "   ")
		req.ErrorIs(err, ErrMessageEmpty)
	})

	t.Run("should report not found for an unknown id", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		svc := newService(newSQLiteStore(t), broadcaster, nil)

		_, err := svc.Edit(ctx, 42, "hello")
		req.ErrorIs(err, ErrMessageNotFound)
		_, err = svc.Edit(ctx, 0, "hello")
		req.ErrorIs(err, ErrMessageNotFound)
	})
}

func TestMessageService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("should delete and announce the id", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store := newSQLiteStore(t)
		svc := newService(store, broadcaster, nil)

		created, err := store.Create(ctx, "alice", "hi")
		req.NoError(err)
		broadcaster.EXPECT().
			Broadcast(gomock.Any(), realtime.EventDeleteMessage, realtime.DeletedMessage{ID: created.ID}).
			Return(nil)

		req.NoError(svc.Delete(ctx, created.ID))
		count, err := store.Count(ctx)
		req.NoError(err)
		req.Zero(count)
	})

	t.Run("should leave the store unchanged for an unknown id", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		store := newSQLiteStore(t)
		svc := newService(store, broadcaster, nil)

		_, err := store.Create(ctx, "alice", "hi")
		req.NoError(err)

		req.ErrorIs(svc.Delete(ctx, 99), ErrMessageNotFound)
		req.ErrorIs(svc.Delete(ctx, 99), ErrMessageNotFound)
		count, err := store.Count(ctx)
		req.NoError(err)
		req.EqualValues(1, count)
	})
}

func TestMessageService_DeleteAll(t *testing.T) {
	ctx := context.Background()

	t.Run("should succeed on an empty store and broadcast clear", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		broadcaster.EXPECT().Broadcast(gomock.Any(), realtime.EventClearMessages, nil).Return(nil).Times(2)
		store := newSQLiteStore(t)
		svc := newService(store, broadcaster, nil)

		req.NoError(svc.DeleteAll(ctx))
		req.NoError(svc.DeleteAll(ctx))
		listed, err := svc.List(ctx)
		req.NoError(err)
		req.Empty(listed)
		req.NotNil(listed)
	})

	t.Run("should surface storage failures", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)
		store.EXPECT().DeleteAll(gomock.Any()).Return(int64(0), errors.New("lock wait timeout"))
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		svc := newService(store, broadcaster, nil)

		req.ErrorIs(svc.DeleteAll(ctx), ErrStorage)
	})
}

func TestMessageService_List(t *testing.T) {
	ctx := context.Background()
	cached := []model.Message{{ID: 3, User: "alice", Text: "cached"}}
	stored := []model.Message{{ID: 4, User: "bob", Text: "stored"}}

	t.Run("should serve a clean cache without touching the store", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		cache := mocks.NewMockHistoryCache(ctrl)
		cache.EXPECT().IsDirty(gomock.Any()).Return(false, nil)
		cache.EXPECT().GetRecent(gomock.Any()).Return(cached, true, nil)
		store.EXPECT().ListRecent(gomock.Any(), gomock.Any()).Times(0)
		svc := newService(store, nil, cache)

		listed, err := svc.List(ctx)
		req.NoError(err)
		req.Equal(cached, listed)
	})

	t.Run("should fill the cache on a miss", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		cache := mocks.NewMockHistoryCache(ctrl)
		cache.EXPECT().IsDirty(gomock.Any()).Return(false, nil).Times(2)
		cache.EXPECT().GetRecent(gomock.Any()).Return(nil, false, nil)
		store.EXPECT().ListRecent(gomock.Any(), 30).Return(stored, nil)
		cache.EXPECT().SetRecent(gomock.Any(), stored).Return(nil)
		svc := newService(store, nil, cache)

		listed, err := svc.List(ctx)
		req.NoError(err)
		req.Equal(stored, listed)
	})

	t.Run("should bypass a dirty cache and not repopulate it", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		cache := mocks.NewMockHistoryCache(ctrl)
		cache.EXPECT().IsDirty(gomock.Any()).Return(true, nil).Times(2)
		cache.EXPECT().GetRecent(gomock.Any()).Times(0)
		cache.EXPECT().SetRecent(gomock.Any(), gomock.Any()).Times(0)
		store.EXPECT().ListRecent(gomock.Any(), 30).Return(stored, nil)
		svc := newService(store, nil, cache)

		listed, err := svc.List(ctx)
		req.NoError(err)
		req.Equal(stored, listed)
	})

	t.Run("should wrap store failures", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		store.EXPECT().ListRecent(gomock.Any(), 30).Return(nil, errors.New("table missing"))
		svc := newService(store, nil, nil)

		_, err := svc.List(ctx)
		req.ErrorIs(err, ErrStorage)
	})

	t.Run("should invalidate the cache before every mutation", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		cache := mocks.NewMockHistoryCache(ctrl)
		gomock.InOrder(
			cache.EXPECT().Invalidate(gomock.Any()).Return(nil),
			store.EXPECT().DeleteAll(gomock.Any()).Return(int64(2), nil),
		)
		svc := newService(store, nil, cache)

		req.NoError(svc.DeleteAll(ctx))
	})
}

func TestMessageService_StoreTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().ListRecent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ int) ([]model.Message, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	svc := NewMessageService(store, nil, nil, logs.GetLoggerFromLevel(slog.LevelError), 20*time.Millisecond, 30)

	_, err := svc.List(context.Background())
	req.ErrorIs(err, ErrStorage)
	req.ErrorIs(err, context.DeadlineExceeded)
}
