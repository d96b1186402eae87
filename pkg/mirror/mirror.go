// Package mirror fetches beatmapset archives from a third-party mirror.
package mirror

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"osugrab/pkg/logger"
)

// DefaultBaseURL is the chimu.moe download endpoint
const DefaultBaseURL = "https://api.chimu.moe/v1/download"

// Client downloads beatmapset archives. Mirrors answer with redirects to
// their CDN, which the underlying http.Client follows.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     logger.Logger
}

// NewClient creates a mirror client. An empty baseURL selects the default
// mirror.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     log,
	}
}

// Download fetches the archive for a beatmapset. A non-2xx mirror response
// is a hard failure for this one download.
func (c *Client) Download(beatmapsetID int) ([]byte, error) {
	url := fmt.Sprintf("%s/%d", c.baseURL, beatmapsetID)

	c.logger.DebugWithFields("downloading beatmapset", map[string]interface{}{
		"beatmapset_id": beatmapsetID,
		"url":           url,
	})

	start := time.Now()
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("mirror request failed for beatmapset %d: %w", beatmapsetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mirror returned status %d for beatmapset %d", resp.StatusCode, beatmapsetID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read beatmapset %d: %w", beatmapsetID, err)
	}

	c.logger.DebugWithFields("beatmapset downloaded", map[string]interface{}{
		"beatmapset_id": beatmapsetID,
		"size":          len(data),
		"duration":      time.Since(start),
	})

	return data, nil
}
