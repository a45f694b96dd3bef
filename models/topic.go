package models

import "time"

// Topic is a thread of posts. Its first post is the topic body and is created
// atomically with the topic; the topic's hidden state always equals the hidden
// state of that first post.
type Topic struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	ForumID  uint   `gorm:"index;not null" json:"forum_id"`
	Title    string `gorm:"size:255;not null" json:"title"`
	UserID   *uint  `gorm:"index" json:"user_id"`
	Username string `gorm:"size:64" json:"username"`

	DateCreated time.Time `gorm:"index" json:"date_created"`
	// LastUpdated mirrors the creation time of the newest non-hidden post and
	// is the timestamp the unread tracker compares against.
	LastUpdated time.Time `gorm:"index" json:"last_updated"`

	Locked    bool `gorm:"default:false" json:"locked"`
	Important bool `gorm:"default:false" json:"important"`
	Views     int  `gorm:"default:0" json:"views"`
	PostCount int  `gorm:"default:0" json:"post_count"`

	FirstPostID *uint `json:"first_post_id"`
	LastPostID  *uint `json:"last_post_id"`

	Hidden   bool       `gorm:"default:false;index" json:"hidden"`
	HiddenAt *time.Time `json:"hidden_at,omitempty"`
	HiddenBy *uint      `json:"hidden_by,omitempty"`

	Posts []Post `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is an individual message within a topic. Author linkage is weak: the
// username snapshot survives user deletion.
type Post struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TopicID  uint   `gorm:"index;not null" json:"topic_id"`
	UserID   *uint  `gorm:"index" json:"user_id"`
	Username string `gorm:"size:64" json:"username"`
	Content  string `gorm:"type:text;not null" json:"content"`

	DateCreated  time.Time  `gorm:"index" json:"date_created"`
	DateModified *time.Time `json:"date_modified,omitempty"`
	ModifiedBy   string     `gorm:"size:64" json:"modified_by,omitempty"`

	Hidden   bool       `gorm:"default:false;index" json:"hidden"`
	HiddenAt *time.Time `json:"hidden_at,omitempty"`
	HiddenBy *uint      `json:"hidden_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFirst reports whether the post opens its topic.
func (p *Post) IsFirst(t *Topic) bool {
	return t.FirstPostID != nil && *t.FirstPostID == p.ID
}
