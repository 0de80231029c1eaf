// Package ragclient queries the knowledge-base retrieval service for
// contextual passages (MITRE ATT&CK techniques, runbooks, past incidents).
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Passage is one retrieved knowledge-base document. The backend filters by
// similarity; results are returned in descending similarity order.
type Passage struct {
	Document   string         `json:"document"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity_score"`
}

// Client talks to the retrieval service.
type Client struct {
	endpoint   string
	collection string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a retrieval client for the given endpoint and collection
// (e.g. mitre_attack).
func New(endpoint, collection string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		collection: collection,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type retrieveRequest struct {
	Query         string  `json:"query"`
	Collection    string  `json:"collection"`
	TopK          int     `json:"top_k"`
	MinSimilarity float64 `json:"min_similarity"`
}

type retrieveResponse struct {
	Query        string    `json:"query"`
	Results      []Passage `json:"results"`
	TotalResults int       `json:"total_results"`
}

// Retrieve performs one bounded-timeout lookup. Results below minSimilarity
// are excluded by the backend and not re-filtered here. On error the passage
// list is nil; callers treat that as "enrichment unavailable".
func (c *Client) Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]Passage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(retrieveRequest{
		Query:         query,
		Collection:    c.collection,
		TopK:          topK,
		MinSimilarity: minSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rag api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out retrieveResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return out.Results, nil
}
