package models

import "time"

// Conversation is one participant's copy of a private exchange. Both copies
// share the same SharedID so replies land in each mailbox independently.
type Conversation struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	SharedID string `gorm:"size:36;index;not null" json:"shared_id"`

	UserID     uint  `gorm:"index;not null" json:"user_id"`
	FromUserID *uint `gorm:"index" json:"from_user_id"`
	ToUserID   *uint `gorm:"index" json:"to_user_id"`

	Subject string `gorm:"size:255" json:"subject"`
	Draft   bool   `gorm:"default:false" json:"draft"`
	Trash   bool   `gorm:"default:false" json:"trash"`
	Unread  bool   `gorm:"default:true" json:"unread"`

	DateCreated time.Time `json:"date_created"`

	Messages []Message `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"messages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message belongs to exactly one conversation copy.
type Message struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ConversationID uint   `gorm:"index;not null" json:"conversation_id"`
	UserID         *uint  `gorm:"index" json:"user_id"`
	Message        string `gorm:"type:text;not null" json:"message"`

	DateCreated time.Time `json:"date_created"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
