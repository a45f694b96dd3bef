package models

import "time"

// Report is a user-submitted flag against a post. A moderator resolves it by
// zapping.
type Report struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ReporterID *uint  `gorm:"index" json:"reporter_id"`
	PostID     *uint  `gorm:"index" json:"post_id"`
	Reason     string `gorm:"size:255" json:"reason"`

	ReportedAt time.Time  `gorm:"not null" json:"reported_at"`
	ZappedAt   *time.Time `json:"zapped_at,omitempty"`
	ZappedBy   *uint      `json:"zapped_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Zapped reports whether a moderator already resolved the report.
func (r *Report) Zapped() bool {
	return r.ZappedAt != nil
}
