package repository

import (
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"gorm.io/gorm"
)

// DocumentRepository defines persistence operations for uploaded law
// documents and their ingestion state.
type DocumentRepository interface {
	Create(doc *model.LawDocument) error
	FindByMD5(docMD5 string) (*model.LawDocument, error)
	UpdateStatus(docMD5 string, status int) error
	MarkIndexed(docMD5 string) error
	List(limit int) ([]model.LawDocument, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository instance.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create inserts a new law document record.
func (r *documentRepository) Create(doc *model.LawDocument) error {
	return r.db.Create(doc).Error
}

// FindByMD5 looks a document up by content hash.
func (r *documentRepository) FindByMD5(docMD5 string) (*model.LawDocument, error) {
	var doc model.LawDocument
	err := r.db.Where("doc_md5 = ?", docMD5).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus sets the ingestion status of a document.
func (r *documentRepository) UpdateStatus(docMD5 string, status int) error {
	return r.db.Model(&model.LawDocument{}).Where("doc_md5 = ?", docMD5).Update("status", status).Error
}

// MarkIndexed records a successful ingestion.
func (r *documentRepository) MarkIndexed(docMD5 string) error {
	now := time.Now()
	return r.db.Model(&model.LawDocument{}).Where("doc_md5 = ?", docMD5).
		Updates(map[string]interface{}{"status": model.DocStatusIndexed, "indexed_at": &now}).Error
}

// List returns the most recently uploaded documents.
func (r *documentRepository) List(limit int) ([]model.LawDocument, error) {
	var docs []model.LawDocument
	err := r.db.Order("created_at DESC").Limit(limit).Find(&docs).Error
	return docs, err
}
