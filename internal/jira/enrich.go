package jira

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// ErrLengthMismatch is returned when a downloaded attachment does not match
// its declared size.
var ErrLengthMismatch = errors.New("attachment length mismatch")

// devStatusVariants are tried in order until one returns pull requests.
var devStatusVariants = []func(issueID string) url.Values{
	func(id string) url.Values {
		return url.Values{"issueId": {id}, "applicationType": {"github"}, "dataType": {"pullrequest"}}
	},
	func(id string) url.Values {
		return url.Values{"issueId": {id}}
	},
}

type remoteLinkResponse struct {
	ID     int `json:"id"`
	Object struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	} `json:"object"`
}

type devStatusResponse struct {
	Detail []struct {
		PullRequests []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			URL    string `json:"url"`
			Status string `json:"status"`
		} `json:"pullRequests"`
	} `json:"detail"`
}

// enrichPage fetches remote links and pull requests for every issue of a
// page concurrently and returns once all of them are done. Each goroutine
// writes only to its own slot.
func (c *Client) enrichPage(ctx context.Context, issues []Issue) {
	limit := c.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range issues {
		issue := &issues[i]
		g.Go(func() error {
			issue.RemoteLinks = c.fetchEnrichment(ctx, issue)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Client) fetchEnrichment(ctx context.Context, issue *Issue) []RemoteLink {
	links, err := c.FetchRemoteLinks(ctx, issue.Key)
	if err != nil {
		c.Logger.Errorw("failed to fetch remote links", "issue", issue.Key, "error", err)
		links = nil
	}

	prs := c.FetchPullRequests(ctx, issue.ID)
	return append(links, prs...)
}

// FetchRemoteLinks returns the remote links of an issue.
func (c *Client) FetchRemoteLinks(ctx context.Context, key string) ([]RemoteLink, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/remotelink", c.URL, url.PathEscape(key))
	body, _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch remote links for %s: %w", key, err)
	}

	var raw []remoteLinkResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse remote links for %s: %w", key, err)
	}

	links := make([]RemoteLink, 0, len(raw))
	for _, r := range raw {
		if r.Object.URL == "" {
			continue
		}
		links = append(links, RemoteLink{URL: r.Object.URL, Title: r.Object.Title, Summary: r.Object.Summary})
	}
	return links, nil
}

// FetchPullRequests asks the dev-status API for pull requests linked to an
// issue. A failed or empty variant falls through to the next one; running
// out of variants yields an empty result, not an error.
func (c *Client) FetchPullRequests(ctx context.Context, issueID string) []RemoteLink {
	for i, variant := range devStatusVariants {
		apiURL := fmt.Sprintf("%s/rest/dev-status/1.0/issue/details?%s", c.URL, variant(issueID).Encode())
		body, _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			c.Logger.Debugw("dev-status lookup failed", "issueId", issueID, "variant", i+1, "error", err)
			continue
		}

		var resp devStatusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			c.Logger.Debugw("dev-status response not understood", "issueId", issueID, "variant", i+1, "error", err)
			continue
		}

		var prs []RemoteLink
		for _, detail := range resp.Detail {
			for _, pr := range detail.PullRequests {
				if pr.URL == "" {
					continue
				}
				prs = append(prs, RemoteLink{URL: pr.URL, Title: pr.Name, Summary: "PR Status: " + pr.Status})
			}
		}
		if len(prs) > 0 {
			return prs
		}
	}

	c.devStatusMisses.Add(1)
	c.Logger.Debugw("no pull requests found via dev-status", "issueId", issueID)
	return nil
}

// DevStatusMisses is the number of issues for which every dev-status
// variant came back failed or empty.
func (c *Client) DevStatusMisses() int64 {
	return c.devStatusMisses.Load()
}

// Download is a fetched attachment.
type Download struct {
	Data []byte
	Hash string // hex SHA-512 of Data
}

// DownloadAttachment fetches an attachment and checks its length against
// both the declared size and the Content-Length header.
func (c *Client) DownloadAttachment(ctx context.Context, att Attachment) (*Download, error) {
	data, headers, err := c.doRequest(ctx, http.MethodGet, att.Content, nil)
	if err != nil {
		return nil, fmt.Errorf("download attachment %s: %w", att.Filename, err)
	}

	if att.Size > 0 && int64(len(data)) != att.Size {
		return nil, fmt.Errorf("%w: %s declared %d bytes, received %d", ErrLengthMismatch, att.Filename, att.Size, len(data))
	}
	if cl := headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n != int64(len(data)) {
			return nil, fmt.Errorf("%w: %s content-length %d, received %d", ErrLengthMismatch, att.Filename, n, len(data))
		}
	}

	sum := sha512.Sum512(data)
	return &Download{Data: data, Hash: hex.EncodeToString(sum[:])}, nil
}
