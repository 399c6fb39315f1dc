// Package genai wraps the Gemini generateContent API and builds the title
// generator and translator on top of it.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/voxnote/internal/apperr"
)

const (
	// DefaultModel is the Gemini model used for titles and translation.
	DefaultModel = "gemini-2.0-flash"

	// DefaultAPIURL is the Gemini API endpoint.
	DefaultAPIURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds a single generateContent call.
	DefaultTimeout = 30 * time.Second
)

// Generator produces text for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the Gemini client settings.
type Config struct {
	APIKey     string
	Model      string
	APIURL     string
	HTTPClient *http.Client
	// RequestsPerMinute paces outgoing calls. Zero disables pacing.
	RequestsPerMinute int
}

// Client calls generateContent. It never retries.
type Client struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Generator = (*Client)(nil)

// NewClient creates a client. An empty APIKey yields a client whose calls
// fail with apperr.ErrGenerationUnavailable.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: cfg.HTTPClient,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Available reports whether a credential is configured.
func (c *Client) Available() bool { return c.apiKey != "" }

// Generate sends prompt as a single user turn and returns the text of the
// first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("genai: %w: no api key configured", apperr.ErrGenerationUnavailable)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("genai: %w: %w", apperr.ErrGenerationFailed, err)
		}
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("genai: marshal request: %w: %w", apperr.ErrGenerationFailed, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.apiURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("genai: create request: %w: %w", apperr.ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("genai: call API: %w: %w", apperr.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("genai: %w: API error %d: %s", apperr.ErrGenerationFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("genai: decode response: %w: %w", apperr.ErrGenerationFailed, err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("genai: %w: no candidates", apperr.ErrGenerationFailed)
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("genai: %w: empty response", apperr.ErrGenerationFailed)
	}
	return text, nil
}
