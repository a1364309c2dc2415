// Package pipeline turns uploaded law documents into searchable passages.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/repository"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/embedding"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/es"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/storage"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/tasks"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/tika"
	"github.com/minio/minio-go/v7"
)

// Law texts number their provisions; splitting on article headings keeps each
// passage a citable unit. Both Latin and Arabic headings are recognized.
var articleHeading = regexp.MustCompile(`(?mi)^\s*(?:Article\s+(\d+)|Art\.?\s+(\d+)|المادة\s+(\d+))`)

// Passages without article structure fall back to fixed-size chunks.
const (
	chunkSize    = 1000
	chunkOverlap = 100
	embedBatch   = 16
)

// Processor runs the offline ingestion flow: download, extract, split,
// persist, embed and index.
type Processor struct {
	tikaClient      *tika.Client
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	minioCfg        config.MinIOConfig
	embeddingCfg    config.EmbeddingConfig
	passageRepo     repository.PassageRepository
	docRepo         repository.DocumentRepository
}

// NewProcessor creates a new Processor instance.
func NewProcessor(
	tikaClient *tika.Client,
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	minioCfg config.MinIOConfig,
	embeddingCfg config.EmbeddingConfig,
	passageRepo repository.PassageRepository,
	docRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		minioCfg:        minioCfg,
		embeddingCfg:    embeddingCfg,
		passageRepo:     passageRepo,
		docRepo:         docRepo,
	}
}

// Process handles one ingest task end to end. It is idempotent: re-running a
// task first removes the passages of an earlier attempt.
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] ingesting document, md5: %s, file: %s", task.DocMD5, task.FileName)

	if err := p.process(ctx, task); err != nil {
		if updateErr := p.docRepo.UpdateStatus(task.DocMD5, model.DocStatusFailed); updateErr != nil {
			log.Errorf("[Processor] failed to mark document %s as failed: %v", task.DocMD5, updateErr)
		}
		return err
	}

	if err := p.docRepo.MarkIndexed(task.DocMD5); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}
	log.Infof("[Processor] document ingested, md5: %s", task.DocMD5)
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentIngestTask) error {
	// 1. Download from MinIO.
	objectName := fmt.Sprintf("documents/%s_%s", task.DocMD5, task.FileName)
	object, err := storage.MinioClient.GetObject(ctx, p.minioCfg.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to download document from MinIO: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("failed to read MinIO object stream: %w", err)
	}
	if size == 0 {
		return errors.New("document content is empty")
	}

	// 2. Extract text with Tika.
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}
	if textContent == "" {
		return errors.New("extracted text is empty")
	}
	log.Infof("[Processor] extracted %d characters from %s", utf8.RuneCountInString(textContent), task.FileName)

	// 3. Split into passages.
	passages := p.splitArticles(textContent)
	if len(passages) == 0 {
		return errors.New("no passages produced from document")
	}
	log.Infof("[Processor] split document into %d passages", len(passages))

	// 4. Clear any earlier attempt, database and index both.
	if err := p.passageRepo.DeleteByDocMD5(task.DocMD5); err != nil {
		return fmt.Errorf("failed to clear old passage records: %w", err)
	}
	if err := es.DeletePassagesByDocMD5(ctx, p.esCfg.IndexName, task.DocMD5); err != nil {
		return fmt.Errorf("failed to clear old index entries: %w", err)
	}

	// 5. Persist passage records.
	// Passage identifiers use the split sequence, not the article number:
	// codified texts occasionally repeat numbers across books.
	records := make([]*model.LawPassage, 0, len(passages))
	for i, ps := range passages {
		records = append(records, &model.LawPassage{
			PassageID:    fmt.Sprintf("%s_%d", task.DocMD5, i),
			DocMD5:       task.DocMD5,
			ArticleNo:    ps.articleNo,
			Text:         ps.text,
			Category:     task.Category,
			ModelVersion: p.embeddingCfg.Model,
		})
	}
	if err := p.passageRepo.BatchCreate(records); err != nil {
		return fmt.Errorf("failed to persist passages: %w", err)
	}

	// 6. Embed in batches and index.
	for start := 0; start < len(records); start += embedBatch {
		end := start + embedBatch
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Text
		}
		vectors, err := p.embeddingClient.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed passages %d..%d: %w", start, end, err)
		}

		for i, r := range batch {
			esDoc := model.EsPassage{
				PassageID:    r.PassageID,
				DocMD5:       r.DocMD5,
				ArticleNo:    r.ArticleNo,
				Text:         r.Text,
				Category:     r.Category,
				Vector:       vectors[i],
				ModelVersion: p.embeddingCfg.Model,
			}
			if err := es.IndexPassage(ctx, p.esCfg.IndexName, esDoc); err != nil {
				return fmt.Errorf("failed to index passage %s: %w", r.PassageID, err)
			}
		}
		log.Infof("[Processor] indexed passages %d..%d of %d", start, end, len(records))
	}
	return nil
}

type splitPassage struct {
	articleNo int
	text      string
}

// splitArticles cuts the document at article headings. Documents without at
// least two recognizable headings are chunked by size instead, with synthetic
// article numbers so passage identifiers stay unique.
func (p *Processor) splitArticles(text string) []splitPassage {
	matches := articleHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return p.chunkSplit(text)
	}

	passages := make([]splitPassage, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		articleNo := 0
		// The heading regex has one capture group per language variant.
		for g := 1; g <= 3; g++ {
			if m[2*g] >= 0 {
				articleNo, _ = strconv.Atoi(text[m[2*g]:m[2*g+1]])
				break
			}
		}

		body := text[start:end]
		if utf8.RuneCountInString(body) < 10 {
			continue
		}
		passages = append(passages, splitPassage{articleNo: articleNo, text: body})
	}
	return passages
}

// chunkSplit splits by rune count with overlap between neighboring chunks.
func (p *Processor) chunkSplit(text string) []splitPassage {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var passages []splitPassage
	step := chunkSize - chunkOverlap
	no := 1
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		passages = append(passages, splitPassage{articleNo: no, text: string(runes[i:end])})
		no++
		if end == len(runes) {
			break
		}
	}
	return passages
}
