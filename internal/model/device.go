package model

import "time"

// Device is one catalog holding (a physical unit) seen by the poller.
type Device struct {
	ID        string `gorm:"primaryKey;size:64"` // Catalog barcode
	Site      string `gorm:"size:256;not null"`
	Type      string `gorm:"size:64;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
