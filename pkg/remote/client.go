// Package remote talks to the school's settings service, which holds the
// authoritative copy of the bell configuration.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/models"
)

const settingsPath = "/bell-settings"

// Settings holds the scalar preferences stored remotely. Nil fields were
// not set on the server.
type Settings struct {
	ActiveScheduleID    *string `json:"activeScheduleId,omitempty"`
	BackgroundExecution *bool   `json:"backgroundExecution,omitempty"`
}

// Snapshot is the payload returned by the settings endpoint.
type Snapshot struct {
	Settings     *Settings               `json:"settings,omitempty"`
	Schedules    []models.BellSchedule   `json:"schedules,omitempty"`
	ToneProfiles []models.ToneProfile    `json:"toneProfiles,omitempty"`
	AudioAssets  []models.BellAudioAsset `json:"audioAssets,omitempty"`
}

// Empty reports whether the snapshot carries no data at all.
func (s *Snapshot) Empty() bool {
	return s == nil || (s.Settings == nil && len(s.Schedules) == 0 && len(s.ToneProfiles) == 0 && len(s.AudioAssets) == 0)
}

// Client is an HTTP client for the settings service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client for baseURL. token may be empty.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the stored settings. A 404 or an empty body means the
// service has nothing yet and returns (nil, nil).
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bell settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bell settings: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bell settings: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode bell settings: %w", err)
	}
	if snap.Empty() {
		return nil, nil
	}
	return &snap, nil
}

// Sync pushes the full state to the service.
func (c *Client) Sync(ctx context.Context, state models.BellManagerState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode bell state: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync bell state: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync bell state: %s", resp.Status)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+settingsPath, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// Nop is used when no settings service is configured.
type Nop struct{}

func (Nop) Fetch(context.Context) (*Snapshot, error) { return nil, nil }

func (Nop) Sync(context.Context, models.BellManagerState) error { return nil }
