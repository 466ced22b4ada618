package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/jihub/internal/logging"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL         string
	Username    string
	APIToken    string
	HTTPClient  Doer
	MaxResults  int
	Concurrency int
	Logger      logging.Logger

	// NewBackOff returns the retry policy for transient responses.
	NewBackOff func() backoff.BackOff

	devStatusMisses atomic.Int64
}

// StatusError is returned for non-success Jira responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:         strings.TrimSuffix(url, "/"),
		Username:    username,
		APIToken:    apiToken,
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		MaxResults:  DefaultMaxResults,
		Concurrency: DefaultConcurrency,
		Logger:      logging.Nop(),
		NewBackOff:  defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

// SearchIssues runs a JQL query to exhaustion and enriches every page before
// moving on. Any page failure aborts the whole listing.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	pageSize := c.MaxResults
	if pageSize <= 0 {
		pageSize = DefaultMaxResults
	}

	var (
		all   []Issue
		total int
		token string
	)

	for page := 0; page < MaxPages; page++ {
		size := pageSize
		if total > 0 {
			if remaining := total - len(all); remaining < size {
				size = remaining
			}
		}
		if size <= 0 {
			break
		}

		result, err := c.searchPage(ctx, jql, size, token)
		if err != nil {
			return nil, fmt.Errorf("search issues (page %d): %w", page+1, err)
		}

		c.enrichPage(ctx, result.Issues)
		all = append(all, result.Issues...)
		if result.Total > 0 {
			total = result.Total
		}

		c.Logger.Infow("received Jira page",
			"page", page+1, "issues", len(result.Issues), "accumulated", len(all), "total", total)

		if len(result.Issues) < size || (total > 0 && len(all) >= total) || result.NextPageToken == "" || result.IsLast {
			return all, nil
		}
		token = result.NextPageToken
	}

	return all, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, size int, token string) (*SearchResult, error) {
	params := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(size)},
		"fields":     {searchFields},
	}
	if token != "" {
		params.Set("nextPageToken", token)
	}

	apiURL := fmt.Sprintf("%s/rest/api/3/search/jql?%s", c.URL, params.Encode())
	body, _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return &result, nil
}

// doRequest executes an authenticated request, retrying rate limits and
// gateway errors, and returns the body and headers of a 2xx response.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, http.Header, error) {
	if c.URL == "" {
		return nil, nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, nil, fmt.Errorf("jira API token not configured")
	}

	var (
		respBody []byte
		headers  http.Header
	)

	op := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "jihub/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		const maxResponseSize = 100 * 1024 * 1024
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
			if isRetryableStatus(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		respBody, headers = data, resp.Header
		return nil
	}

	newBackOff := c.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	if err := backoff.Retry(op, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return nil, nil, err
	}
	return respBody, headers, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

