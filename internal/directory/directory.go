// Package directory resolves whether an actor still exists in the host's
// identity system. The recorder consults it before stamping an actor on an
// event, so a deleted account never shows up as the author of new history.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPDirectory checks actor existence against a REST identity service.
// Any 2xx answer counts as existing, 404 and 410 as gone; everything else is
// an error the recorder treats as "unknown actor".
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTP builds a directory client on the service's base URL.
func NewHTTP(baseURL string, client *http.Client) *HTTPDirectory {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPDirectory{baseURL: baseURL, client: client}
}

func (d *HTTPDirectory) Exists(ctx context.Context, actorID string) (bool, error) {
	endpoint := d.baseURL + "/v1/actors/" + url.PathEscape(actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	default:
		return false, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
}

// Static is a fixed allow-list directory for local runs and tests.
type Static map[string]struct{}

// NewStatic builds a Static directory from actor IDs.
func NewStatic(ids ...string) Static {
	s := make(Static, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Static) Exists(_ context.Context, actorID string) (bool, error) {
	_, ok := s[actorID]
	return ok, nil
}
