// internal/catalog/elasticsearch_index.go
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/models"
)

const (
	DefaultProductIndex = "lender_products"

	// maxSearchSize is the default index.max_result_window.
	maxSearchSize = 10000
)

// ElasticsearchIndex serves the catalog from a search index and keeps that
// index in step with synced products.
type ElasticsearchIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchIndex(client *elasticsearch.Client, index string) *ElasticsearchIndex {
	if index == "" {
		index = DefaultProductIndex
	}
	return &ElasticsearchIndex{client: client, index: index}
}

func (e *ElasticsearchIndex) Name() string { return SourceElasticsearch }

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string               `json:"_id"`
			Source models.LenderProduct `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticsearchIndex) Fetch(ctx context.Context) ([]models.LenderProduct, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"active": true},
		},
		"sort": []interface{}{
			map[string]interface{}{"lenderName.keyword": map[string]interface{}{"order": "asc", "unmapped_type": "keyword"}},
		},
	}
	body, _ := json.Marshal(query)

	size := maxSearchSize
	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError("fetch_products", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewIndexNotFoundError(e.index)
	}
	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError("fetch_products",
			errors.New(strings.TrimSpace(res.String())))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewSearchQueryFailedError("fetch_products", fmt.Errorf("decode search response: %w", err))
	}

	products := make([]models.LenderProduct, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		p := hit.Source
		if p.ID == "" {
			p.ID = hit.ID
		}
		products = append(products, p)
	}
	return products, nil
}

// Index writes every product under its ID and refreshes the index once at
// the end so the new documents are searchable.
func (e *ElasticsearchIndex) Index(ctx context.Context, products []models.LenderProduct) (int, error) {
	indexed := 0
	for _, p := range products {
		doc, err := json.Marshal(p)
		if err != nil {
			return indexed, fmt.Errorf("encode %s: %w", p.ID, err)
		}
		req := esapi.IndexRequest{
			Index:      e.index,
			DocumentID: p.ID,
			Body:       bytes.NewReader(doc),
		}
		res, err := req.Do(ctx, e.client)
		if err != nil {
			return indexed, fmt.Errorf("index %s: %w", p.ID, err)
		}
		isErr, status := res.IsError(), res.String()
		res.Body.Close()
		if isErr {
			return indexed, fmt.Errorf("index %s: %s", p.ID, status)
		}
		indexed++
	}

	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithContext(ctx),
		e.client.Indices.Refresh.WithIndex(e.index),
	)
	if err != nil {
		return indexed, fmt.Errorf("refresh %s: %w", e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return indexed, fmt.Errorf("refresh %s: %s", e.index, strings.TrimSpace(res.String()))
	}
	return indexed, nil
}
