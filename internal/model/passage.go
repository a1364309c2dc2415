package model

// RetrievedPassage is the ephemeral result of a similarity query. It is
// consumed by the prompt assembler and optionally recorded as a
// context-injection message; it is never persisted as its own entity.
type RetrievedPassage struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
	Category string  `json:"category"`
}

// EsPassage is the document shape stored in the Elasticsearch index.
type EsPassage struct {
	PassageID    string    `json:"passage_id"`
	DocMD5       string    `json:"doc_md5"`
	ArticleNo    int       `json:"article_no"`
	Text         string    `json:"text"`
	Category     string    `json:"category"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// LawPassage maps to the 'law_passages' table, the durable record of the
// split passages behind the search index.
type LawPassage struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PassageID    string `gorm:"type:varchar(64);not null;uniqueIndex" json:"passageId"`
	DocMD5       string `gorm:"type:varchar(32);not null;index" json:"docMd5"`
	ArticleNo    int    `gorm:"not null" json:"articleNo"`
	Text         string `gorm:"type:text" json:"text"`
	Category     string `gorm:"type:varchar(100)" json:"category"`
	ModelVersion string `gorm:"type:varchar(50)" json:"modelVersion"`
}

// TableName names the table this model maps to.
func (LawPassage) TableName() string {
	return "law_passages"
}
