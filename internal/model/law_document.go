package model

import "time"

// Law document ingestion statuses.
const (
	DocStatusPending = 0
	DocStatusIndexed = 1
	DocStatusFailed  = 2
)

// LawDocument maps to the 'law_documents' table. It records each uploaded
// source document and its ingestion state.
type LawDocument struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DocMD5    string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"docMd5"`
	FileName  string     `gorm:"type:varchar(255);not null" json:"fileName"`
	Title     string     `gorm:"type:varchar(255)" json:"title"`
	Category  string     `gorm:"type:varchar(100)" json:"category"`
	Status    int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	UserID    uint       `gorm:"not null" json:"userId"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName names the table this model maps to.
func (LawDocument) TableName() string {
	return "law_documents"
}
