package repository

import (
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"gorm.io/gorm"
)

// PassageRepository defines persistence operations for the durable passage
// records behind the search index.
type PassageRepository interface {
	BatchCreate(passages []*model.LawPassage) error
	FindByDocMD5(docMD5 string) ([]*model.LawPassage, error)
	DeleteByDocMD5(docMD5 string) error
}

type passageRepository struct {
	db *gorm.DB
}

// NewPassageRepository creates a new PassageRepository instance.
func NewPassageRepository(db *gorm.DB) PassageRepository {
	return &passageRepository{db: db}
}

// BatchCreate inserts passage records in batches of 100.
func (r *passageRepository) BatchCreate(passages []*model.LawPassage) error {
	if len(passages) == 0 {
		return nil
	}
	return r.db.CreateInBatches(passages, 100).Error
}

// FindByDocMD5 returns all passage records of one source document.
func (r *passageRepository) FindByDocMD5(docMD5 string) ([]*model.LawPassage, error) {
	var passages []*model.LawPassage
	err := r.db.Where("doc_md5 = ?", docMD5).Order("article_no ASC").Find(&passages).Error
	return passages, err
}

// DeleteByDocMD5 removes all passage records of one source document.
func (r *passageRepository) DeleteByDocMD5(docMD5 string) error {
	return r.db.Where("doc_md5 = ?", docMD5).Delete(&model.LawPassage{}).Error
}
