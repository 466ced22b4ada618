package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func (c *Client) contentsURL(path string, params map[string]string) string {
	path = strings.Trim(path, "/")
	u := "/repos/" + c.repoPath() + "/contents"
	if path != "" {
		u += "/" + path
	}
	return c.buildURL(u, params)
}

// ListContents lists every file under path, descending into directories.
// A missing path surfaces as an error for which IsNotFound is true.
func (c *Client) ListContents(ctx context.Context, path, branch string) ([]Content, error) {
	var files []Content
	pending := []string{path}

	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		var params map[string]string
		if branch != "" {
			params = map[string]string{"ref": branch}
		}
		respBody, _, err := c.doRequest(ctx, http.MethodGet, c.contentsURL(dir, params), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list contents of %q: %w", dir, err)
		}

		var entries []Content
		if err := json.Unmarshal(respBody, &entries); err != nil {
			// A file path returns a single object rather than a listing.
			var single Content
			if err2 := json.Unmarshal(respBody, &single); err2 != nil {
				return nil, fmt.Errorf("failed to parse contents response: %w", err)
			}
			entries = []Content{single}
		}

		for _, entry := range entries {
			switch entry.Type {
			case "file":
				files = append(files, entry)
			case "dir":
				pending = append(pending, entry.Path)
			}
		}
	}

	return files, nil
}

// PutContent uploads data to path on the given branch.
func (c *Client) PutContent(ctx context.Context, path, branch string, data []byte, committer *Committer) (*Content, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}

	upload := ContentUpload{
		Message:   "Upload file " + name,
		Content:   base64.StdEncoding.EncodeToString(data),
		Branch:    branch,
		Committer: committer,
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPut, c.contentsURL(path, nil), upload)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %q: %w", path, err)
	}

	var result struct {
		Content Content `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	return &result.Content, nil
}
