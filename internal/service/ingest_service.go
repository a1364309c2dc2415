package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/repository"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/kafka"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/storage"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/tasks"
	"gorm.io/gorm"
)

// IngestService accepts law source documents and queues them for indexing.
// The heavy work (text extraction, splitting, embedding) happens in the
// pipeline consumer; upload only stores the bytes and publishes a task.
type IngestService interface {
	Upload(ctx context.Context, fileName, title, category string, reader io.Reader, userID uint) (*model.LawDocument, error)
	ListDocuments(limit int) ([]model.LawDocument, error)
}

type ingestService struct {
	docRepo  repository.DocumentRepository
	minioCfg config.MinIOConfig
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(docRepo repository.DocumentRepository, minioCfg config.MinIOConfig) IngestService {
	return &ingestService{
		docRepo:  docRepo,
		minioCfg: minioCfg,
	}
}

// Upload hashes the file, stores it in object storage and publishes an ingest
// task. Re-uploading already-indexed content is rejected; a previously failed
// document is re-queued.
func (s *ingestService) Upload(ctx context.Context, fileName, title, category string, reader io.Reader, userID uint) (*model.LawDocument, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}

	sum := md5.Sum(data)
	docMD5 := hex.EncodeToString(sum[:])

	existing, err := s.docRepo.FindByMD5(docMD5)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == model.DocStatusIndexed {
		return existing, ErrDuplicateDocument
	}

	objectName := fmt.Sprintf("documents/%s_%s", docMD5, fileName)
	if err := storage.UploadObject(ctx, s.minioCfg.BucketName, objectName, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := existing
	if doc == nil {
		doc = &model.LawDocument{
			DocMD5:   docMD5,
			FileName: fileName,
			Title:    title,
			Category: category,
			Status:   model.DocStatusPending,
			UserID:   userID,
		}
		if err := s.docRepo.Create(doc); err != nil {
			return nil, fmt.Errorf("failed to record document: %w", err)
		}
	} else if err := s.docRepo.UpdateStatus(docMD5, model.DocStatusPending); err != nil {
		return nil, err
	}

	task := tasks.DocumentIngestTask{
		DocMD5:   docMD5,
		FileName: fileName,
		Title:    title,
		Category: category,
		UserID:   userID,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		// The document record stays pending; a manual re-upload re-queues it.
		log.Errorf("[IngestService] failed to queue ingest task for %s: %v", docMD5, err)
		return nil, fmt.Errorf("failed to queue ingest task: %w", err)
	}

	log.Infof("[IngestService] document queued: md5=%s, file=%s", docMD5, fileName)
	return doc, nil
}

// ListDocuments returns the most recently uploaded documents.
func (s *ingestService) ListDocuments(limit int) ([]model.LawDocument, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	return s.docRepo.List(limit)
}
