package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Group bundles the permission flags shared by its members. A user carries one
// primary group and any number of secondary groups; effective flags are the OR
// across all of them.
type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`

	// Role flags
	Admin    bool `gorm:"default:false" json:"admin"`
	SuperMod bool `gorm:"default:false" json:"super_mod"`
	Mod      bool `gorm:"default:false" json:"mod"`
	Guest    bool `gorm:"default:false" json:"guest"`
	Banned   bool `gorm:"default:false" json:"banned"`

	// Capability flags
	EditPost    bool `gorm:"default:false" json:"editpost"`
	DeletePost  bool `gorm:"default:false" json:"deletepost"`
	DeleteTopic bool `gorm:"default:false" json:"deletetopic"`
	PostTopic   bool `gorm:"default:false" json:"posttopic"`
	PostReply   bool `gorm:"default:false" json:"postreply"`
	ModEditUser bool `gorm:"default:false" json:"mod_edituser"`
	ModBanUser  bool `gorm:"default:false" json:"mod_banuser"`
	ViewHidden  bool `gorm:"default:false" json:"viewhidden"`
	MakeHidden  bool `gorm:"default:false" json:"makehidden"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255" json:"-"`

	DateJoined time.Time  `json:"date_joined"`
	LastSeen   *time.Time `json:"lastseen"`
	Birthday   *time.Time `json:"birthday"`

	// Profile fields
	Language  string `gorm:"size:16" json:"language"`
	Location  string `gorm:"size:100" json:"location"`
	Website   string `gorm:"size:200" json:"website"`
	AvatarURL string `gorm:"size:512" json:"avatar_url"`
	Signature string `gorm:"size:255" json:"signature"`

	Activated       bool       `gorm:"default:false" json:"activated"`
	LoginAttempts   int        `gorm:"default:0" json:"-"`
	LastFailedLogin *time.Time `json:"-"`

	PrimaryGroupID  uint    `gorm:"index;not null" json:"primary_group_id"`
	PrimaryGroup    Group   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	SecondaryGroups []Group `gorm:"many2many:user_groups;" json:"-"`

	PostCount int `gorm:"default:0" json:"post_count"`

	TrackedTopics []Topic `gorm:"many2many:topic_trackers;" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.DateJoined.IsZero() {
		u.DateJoined = now
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// Groups returns the primary group followed by all secondary groups. The
// associations must already be loaded.
func (u *User) Groups() []Group {
	groups := make([]Group, 0, len(u.SecondaryGroups)+1)
	groups = append(groups, u.PrimaryGroup)
	groups = append(groups, u.SecondaryGroups...)
	return groups
}

// InGroup reports whether the user belongs to the given group.
func (u *User) InGroup(groupID uint) bool {
	for _, g := range u.Groups() {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// NormalizeIdentifier lowercases a username or email for case-insensitive
// lookups. Uniqueness of both columns is enforced on the normalized form.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
