package adsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clicklab/analytics/internal/utils"
)

// RawRow is one unnormalized result row from the ads platform.
// Monetary metrics arrive in micro-currency units and CTR as a
// fraction; normalization happens in the fetcher.
type RawRow struct {
	Date         string `json:"date"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdGroupID    string `json:"ad_group_id"`
	AdGroupName  string `json:"ad_group_name"`
	KeywordID    string `json:"keyword_id"`
	KeywordText  string `json:"keyword_text"`

	Impressions     *uint64  `json:"impressions"`
	Clicks          *uint64  `json:"clicks"`
	CostMicros      *int64   `json:"cost_micros"`
	Conversions     *float64 `json:"conversions"`
	ConversionValue *float64 `json:"conversions_value"`
	QualityScore    *float64 `json:"quality_score"`
	CTR             *float64 `json:"ctr"`
	AvgCPCMicros    *int64   `json:"average_cpc"`
	AvgPosition     *float64 `json:"average_position"`
}

// SearchRequest is one page of a search-style performance query.
type SearchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token,omitempty"`
}

type SearchResponse struct {
	Results       []RawRow `json:"results"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// Client is the ads-platform collaborator. Implementations own
// transport-level concerns; callers only see rows or an APIError.
type Client interface {
	Search(ctx context.Context, accountID string, req SearchRequest) (*SearchResponse, error)
}

// APIError is the platform-specific failure the fetcher treats as a
// per-account skip.
type APIError struct {
	AccountID string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ads api error for account %s: status=%d %s", e.AccountID, e.Status, e.Message)
}

// HTTPClient talks to the ads platform's REST search endpoint with
// retry on transient failures.
type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
	backoff utils.Backoff
}

func NewHTTPClient(baseURL, developerToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   developerToken,
		httpc:   &http.Client{Timeout: timeout},
		backoff: utils.NewBackoff(100*time.Millisecond, 2),
	}
}

func (c *HTTPClient) Search(ctx context.Context, accountID string, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	url := fmt.Sprintf("%s/customers/%s/performance:search", c.baseURL, accountID)

	var out SearchResponse
	err = c.backoff.Do(func(int) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &APIError{AccountID: accountID, Status: resp.StatusCode, Message: string(b)}
		}
		out = SearchResponse{}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
