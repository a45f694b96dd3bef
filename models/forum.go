package models

import "time"

// Category is an ordered, labelled group of forums.
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Position    int    `gorm:"default:0;index" json:"position"`

	Forums []Forum `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"forums,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Forum contains topics and carries denormalised counters plus a snapshot of
// its most recent non-hidden post. The snapshot columns (LastPostTitle,
// LastPostUsername, LastPostCreated) move in lock-step with LastPostID and are
// written through a single mutator in the forum service.
type Forum struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CategoryID  uint   `gorm:"index;not null" json:"category_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Position    int    `gorm:"default:0;index" json:"position"`
	Locked      bool   `gorm:"default:false" json:"locked"`

	// External makes the forum a pure redirect; it holds no topics.
	External string `gorm:"size:512" json:"external,omitempty"`

	ShowModerators bool `gorm:"default:false" json:"show_moderators"`

	TopicCount int `gorm:"default:0" json:"topic_count"`
	PostCount  int `gorm:"default:0" json:"post_count"`

	LastPostID       *uint      `json:"last_post_id"`
	LastPostUserID   *uint      `json:"last_post_user_id"`
	LastPostTitle    string     `gorm:"size:255" json:"last_post_title"`
	LastPostUsername string     `gorm:"size:64" json:"last_post_username"`
	LastPostCreated  *time.Time `json:"last_post_created"`

	Topics     []Topic `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Groups     []Group `gorm:"many2many:forum_groups;" json:"-"`
	Moderators []User  `gorm:"many2many:forum_moderators;" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExternal reports whether the forum is a redirect to an external URL.
func (f *Forum) IsExternal() bool {
	return f.External != ""
}
