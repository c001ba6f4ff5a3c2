package models

import "time"

// SystemSetting persists installation-wide values such as feature toggles and the
// generated vault key.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
