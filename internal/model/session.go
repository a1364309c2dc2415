package model

import "time"

// DefaultSessionTitle is the placeholder a session keeps until title
// generation succeeds.
const DefaultSessionTitle = "New consultation"

// Session represents one ongoing consultation owned by a single user.
// The title is assigned lazily by an asynchronous generation call.
type Session struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName names the table this model maps to.
func (Session) TableName() string {
	return "sessions"
}
