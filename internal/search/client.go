package search

import (
	"bytes"
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/daybook/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IndexEntries holds progress items and timeline events side by side
const IndexEntries = "daybook-entries"

// Hit is one raw match from the index
type Hit struct {
	Document  Document
	Score     float64
	Highlight string
}

// Client wraps the Elasticsearch client with Daybook-specific functionality
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient connects to Elasticsearch at url and verifies the connection
func NewClient(url string) (*Client, error) {
	if url == "" {
		url = "http://localhost:9200"
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Transport: telemetry.NewInstrumentedTransport(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info failed: %s", res.Status())
	}

	return &Client{es: es, index: IndexEntries}, nil
}

// InitializeIndices creates the entries index with its mapping if it does not exist
func (c *Client) InitializeIndices(ctx context.Context) error {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":      map[string]interface{}{"type": "keyword"},
				"user_id": map[string]interface{}{"type": "keyword"},
				"type":    map[string]interface{}{"type": "keyword"},
				"title": map[string]interface{}{
					"type":     "text",
					"analyzer": "standard",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword"},
					},
				},
				"description": map[string]interface{}{"type": "text", "analyzer": "standard"},
				"location":    map[string]interface{}{"type": "text", "analyzer": "standard"},
				"status":      map[string]interface{}{"type": "keyword"},
				"date":        map[string]interface{}{"type": "keyword"},
				"updated_at":  map[string]interface{}{"type": "date"},
			},
		},
	}
	return c.createIndex(ctx, c.index, mapping)
}

func (c *Client) createIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	res, err := c.es.Indices.Exists([]string{indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("creating index", res)
	}
	return nil
}

// IndexDocument adds or replaces a document
func (c *Client) IndexDocument(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(doc.DocumentID()),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("indexing document", res)
	}
	return nil
}

// DeleteDocument removes a document. A missing document is not an error.
func (c *Client) DeleteDocument(ctx context.Context, docType, id string) error {
	res, err := c.es.Delete(c.index, documentID(docType, id), c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return responseError("deleting document", res)
	}
	return nil
}

// Search runs a full-text query restricted to the user's documents
func (c *Client) Search(ctx context.Context, userID, query string, limit int) ([]Hit, error) {
	q := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{
						"multi_match": map[string]interface{}{
							"query":     query,
							"fields":    []string{"title^3", "description", "location"},
							"fuzziness": "AUTO",
						},
					},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"user_id": userID}},
				},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"description": map[string]interface{}{"fragment_size": 120, "number_of_fragments": 1},
			},
		},
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("searching", res)
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				Score     float64             `json:"_score"`
				Source    Document            `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(searchResp.Hits.Hits))
	for _, h := range searchResp.Hits.Hits {
		hit := Hit{Document: h.Source, Score: h.Score}
		if frags := h.Highlight["description"]; len(frags) > 0 {
			hit.Highlight = frags[0]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func responseError(action string, res *esapi.Response) error {
	var errResp map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("error %s: %s", action, res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}
