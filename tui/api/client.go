package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client triggers imports through the daemon's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// TriggerImport asks the daemon to import feedID in the background. It
// returns once the daemon has accepted the request; the run itself shows
// up in the import history.
func (c *Client) TriggerImport(feedID string) error {
	endpoint := c.baseURL + "/api/v1/feeds/" + url.PathEscape(feedID) + "/trigger"
	resp, err := c.http.Post(endpoint, "application/json", nil)
	if err != nil {
		return fmt.Errorf("trigger import: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("trigger import: %s", apiErr.Error)
	}
	return nil
}
