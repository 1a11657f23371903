package model

import (
	"time"
)

// HoldingOpen is the current state of a device that is not on the shelf (hot table).
type HoldingOpen struct {
	DeviceID   string    `gorm:"primaryKey;size:64"`
	ObservedAt time.Time `gorm:"not null"` // When this state was first seen
	State      string    `gorm:"size:64;not null"`
	RawState   string    `gorm:"size:256;not null"`
	DueDate    string    `gorm:"size:16"`
}

// HoldingHistory is a finished period of a device state (cold table).
type HoldingHistory struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	DeviceID    string    `gorm:"size:64;not null;index"`
	ObservedAt  time.Time `gorm:"not null;index"` // When the state's end was observed
	State       string    `gorm:"size:64;not null"`
	RawState    string    `gorm:"size:256;not null"`
	DueDate     string    `gorm:"size:16"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
}

// PollLog records the outcome of one background status read.
type PollLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ObservedAt time.Time `gorm:"not null;index" json:"observedAt"`
	Level      string    `gorm:"size:16;not null" json:"level"`
	Message    string    `gorm:"size:128;not null" json:"message"`
	Records    int       `gorm:"not null" json:"records"`
	Failed     string    `gorm:"size:512" json:"failed"` // Comma-separated query IDs without data
}
