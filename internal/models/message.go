package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// MessageBox identifies whose copy of a message a row is.
type MessageBox string

const (
	// MessageBoxInbox rows belong to the receiver.
	MessageBoxInbox MessageBox = "inbox"
	// MessageBoxOutbox rows belong to the sender.
	MessageBoxOutbox MessageBox = "outbox"
)

// Message is one copy of a private message. Sending writes an outbox row for the
// sender and an inbox row for the receiver so each side can delete independently.
type Message struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SenderID   string     `gorm:"type:uuid;not null;index:idx_messages_sender_box,priority:1" json:"sender_id"`
	Sender     *User      `gorm:"foreignKey:SenderID" json:"-"`
	ReceiverID string     `gorm:"type:uuid;not null;index" json:"receiver_id"`
	Receiver   *User      `gorm:"foreignKey:ReceiverID" json:"-"`
	Box        MessageBox `gorm:"type:varchar(16);not null;index:idx_messages_sender_box,priority:2" json:"box"`
	Title      string     `gorm:"not null" json:"title"`
	Content    string     `gorm:"type:text" json:"content"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave validates ownership fields and the box value.
func (m *Message) BeforeSave(tx *gorm.DB) error {
	m.Title = strings.TrimSpace(m.Title)
	switch {
	case strings.TrimSpace(m.SenderID) == "":
		return errors.New("message: sender_id is required")
	case strings.TrimSpace(m.ReceiverID) == "":
		return errors.New("message: receiver_id is required")
	case m.Title == "":
		return errors.New("message: title is required")
	}
	if m.Box != MessageBoxInbox && m.Box != MessageBoxOutbox {
		return errors.New("message: box must be inbox or outbox")
	}
	return nil
}
