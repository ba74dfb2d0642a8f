package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Health struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	WhisperAvailable bool   `json:"whisper_available"`
}

type EngineStatus struct {
	Transcription struct {
		Available bool   `json:"available"`
		Engine    string `json:"engine"`
	} `json:"transcription"`
}

// StatusClient queries the service's HTTP health endpoints.
type StatusClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewStatusClient(wsURL string) (*StatusClient, error) {
	base, err := HTTPBase(wsURL)
	if err != nil {
		return nil, err
	}
	return &StatusClient{BaseURL: base, HTTPClient: &http.Client{}}, nil
}

// HTTPBase derives the service's HTTP origin from its websocket URL.
func HTTPBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", wsURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, wsURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *StatusClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *StatusClient) Engine(ctx context.Context) (*EngineStatus, error) {
	var s EngineStatus
	if err := c.get(ctx, "/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *StatusClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf(
			"unexpected status code: %d, response body: %s",
			resp.StatusCode,
			string(body),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
