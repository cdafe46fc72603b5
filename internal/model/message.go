package model

import "time"

// Message is a single chat line. Only Text may change after creation.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	User      string    `gorm:"size:255;not null" json:"user"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Timestamp time.Time `gorm:"not null;autoCreateTime;index" json:"timestamp"`
}
