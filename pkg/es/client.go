// Package es provides the Elasticsearch client used as the similarity search store.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES initializes the Elasticsearch client and ensures the passage index exists.
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, esCfg.Dimensions)
}

// createIndexIfNotExists checks for the index and creates it when missing.
func createIndexIfNotExists(indexName string, dimensions int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("failed to check index existence: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("unexpected status checking index '%s': %d", indexName, res.StatusCode)
		return fmt.Errorf("unexpected status checking index existence: %d", res.StatusCode)
	}

	if dimensions <= 0 {
		dimensions = 768
	}

	// Cosine similarity over dense vectors; passage text kept alongside for audit.
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"passage_id": { "type": "keyword" },
				"doc_md5": { "type": "keyword" },
				"article_no": { "type": "integer" },
				"text": { "type": "text" },
				"category": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dimensions)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("failed to create index '%s': %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("elasticsearch returned error creating index '%s': %s", indexName, res.String())
		return errors.New("elasticsearch returned error on index creation")
	}

	log.Infof("index '%s' created successfully", indexName)
	return nil
}

// IndexPassage indexes a single passage document.
func IndexPassage(ctx context.Context, indexName string, doc model.EsPassage) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.PassageID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to index passage: %s", res.String())
		return errors.New("failed to index passage")
	}

	return nil
}

// DeletePassagesByDocMD5 removes all passages belonging to a document, so
// re-ingestion stays idempotent.
func DeletePassagesByDocMD5(ctx context.Context, indexName, docMD5 string) error {
	query := fmt.Sprintf(`{"query": {"term": {"doc_md5": "%s"}}}`, docMD5)
	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		strings.NewReader(query),
		ESClient.DeleteByQuery.WithContext(ctx),
		ESClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to delete passages for doc %s: %s", docMD5, res.String())
		return errors.New("failed to delete passages")
	}
	return nil
}
