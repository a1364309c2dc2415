package model

import "time"

// Message sender roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message kinds. KindContext marks internal context-injection turns that
// record which passages were fed to the model; they are kept for audit and
// excluded from user-facing history by default.
const (
	KindChat    = "chat"
	KindContext = "context"
)

// Message is one immutable chat turn. Ordering within a session is by SentAt
// with the auto-increment ID as insertion-order tiebreaker.
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:char(36);index;not null" json:"sessionId"`
	Role      string    `gorm:"type:varchar(20);not null" json:"role"`
	Kind      string    `gorm:"type:varchar(20);not null;default:'chat'" json:"kind"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	// Incomplete marks assistant replies whose stream broke mid-flight.
	Incomplete bool      `gorm:"not null;default:false" json:"incomplete"`
	SentAt     time.Time `gorm:"autoCreateTime;index" json:"sentAt"`
}

// TableName names the table this model maps to.
func (Message) TableName() string {
	return "messages"
}
