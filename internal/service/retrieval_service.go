package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/embedding"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/elastic/go-elasticsearch/v8"
)

// RetrievalService finds the law passages most similar to a query. An empty
// result is a valid outcome, not an error.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedPassage, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	esClient        *elasticsearch.Client
	indexName       string
}

// NewRetrievalService creates a new RetrievalService instance.
func NewRetrievalService(embeddingClient embedding.Client, esClient *elasticsearch.Client, indexName string) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		indexName:       indexName,
	}
}

type knnHit struct {
	Score  float64 `json:"_score"`
	Source struct {
		PassageID string `json:"passage_id"`
		Text      string `json:"text"`
		Category  string `json:"category"`
	} `json:"_source"`
}

type knnResponse struct {
	Hits struct {
		Hits []knnHit `json:"hits"`
	} `json:"hits"`
}

// Retrieve embeds the query and runs a k-NN search over the passage index.
func (s *retrievalService) Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedPassage, error) {
	vectors, err := s.embeddingClient.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVector := vectors[0]

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK,
			"num_candidates": topK * 10,
		},
		"_source": []string{"passage_id", "text", "category"},
		"size":    topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[RetrievalService] search failed: %s", res.String())
		return nil, fmt.Errorf("%w: status %s", ErrRetrievalUnavailable, res.Status())
	}

	var parsed knnResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrRetrievalUnavailable, err)
	}

	passages := make([]model.RetrievedPassage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		passages = append(passages, model.RetrievedPassage{
			ID:       hit.Source.PassageID,
			Score:    hit.Score,
			Text:     hit.Source.Text,
			Category: hit.Source.Category,
		})
	}
	log.Infof("[RetrievalService] query matched %d passages (topK=%d)", len(passages), topK)
	return passages, nil
}
