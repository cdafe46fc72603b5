package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatroom-backend/internal/model"
)

const DefaultRecentLimit = 30

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListRecent returns the newest limit messages, oldest first.
func (r *MessageRepository) ListRecent(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Create inserts a row and reads it back on the same connection so the caller
// sees the id and timestamp the store assigned.
func (r *MessageRepository) Create(ctx context.Context, user, text string) (*model.Message, error) {
	var stored model.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message := model.Message{User: user, Text: text}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.First(&stored, message.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create message failed: %w", err)
	}
	return &stored, nil
}

// UpdateText returns nil, nil when no row has the given id.
func (r *MessageRepository) UpdateText(ctx context.Context, id uint, text string) (*model.Message, error) {
	var updated *model.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Message{}).Where("id = ?", id).Update("text", text)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		var message model.Message
		if err := tx.First(&message, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		updated = &message
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update message %d failed: %w", id, err)
	}
	return updated, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&model.Message{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("delete message %d failed: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteAll empties the table. Deleting from an empty table is not an error.
func (r *MessageRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete all messages failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Message{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}
