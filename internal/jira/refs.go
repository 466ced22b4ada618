package jira

import (
	"fmt"
	"strings"
	"time"
)

// BrowseURL returns the human-readable page of an issue on the given site,
// or "" when the site is unknown.
func BrowseURL(siteURL, key string) string {
	siteURL = strings.TrimSuffix(siteURL, "/")
	if siteURL == "" || key == "" {
		return ""
	}
	return siteURL + "/browse/" + key
}

// KeyFromBrowseURL extracts the issue key from a browse URL.
// For example, "https://company.atlassian.net/browse/PROJ-123" returns "PROJ-123".
func KeyFromBrowseURL(u string) string {
	idx := strings.LastIndex(u, "/browse/")
	if idx == -1 {
		return ""
	}
	key := u[idx+len("/browse/"):]
	if i := strings.IndexAny(key, "?#/"); i >= 0 {
		key = key[:i]
	}
	return key
}

// timestampFormats are tried in order by ParseTimestamp.
var timestampFormats = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseTimestamp parses Jira's timestamp format into a time.Time.
// Jira uses ISO 8601 with timezone: 2024-01-15T10:30:00.000+0000 or 2024-01-15T10:30:00.000Z
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}
