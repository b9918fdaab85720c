package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kioku/internal/models"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	// ProviderMock selects MockEmbedder for offline use.
	ProviderMock = "mock"

	defaultAzureAPIVersion = "2024-02-01"
	defaultTimeout         = 30 * time.Second
)

// ClientConfig holds provider settings. Secrets come from config or environment.
type ClientConfig struct {
	Provider   string
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// Client calls an OpenAI-compatible or Azure OpenAI embeddings endpoint.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// WithRateLimit makes every request wait for a token from a limiter allowing
// requestsPerSecond with the given burst. Zero disables limiting.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient creates an embeddings client. An incomplete configuration is accepted;
// calls then fail with a configuration error.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.Provider == "" {
		cfg.Provider = ProviderAzure
	}
	if cfg.Provider == ProviderAzure && cfg.APIVersion == "" {
		cfg.APIVersion = defaultAzureAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Deployment
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DimensionsFor(cfg.Model)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured reports whether endpoint, key and model/deployment are all present.
func (c *Client) IsConfigured() bool {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		return false
	}
	if c.cfg.Provider == ProviderAzure {
		return c.cfg.Deployment != ""
	}
	return c.cfg.Model != ""
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Dimensions returns the vector size for the configured model.
func (c *Client) Dimensions() int { return c.cfg.Dimensions }

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type embeddingsRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) (*Result, error) {
	if !c.IsConfigured() {
		return nil, models.NewConfigurationError("embedding provider is not configured: endpoint, api key and deployment or model are required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError("text cannot be empty")
	}
	resp, err := c.post(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(resp.Data))
	}
	return &Result{
		Vector: resp.Data[0].Embedding,
		Model:  c.modelName(resp),
		Index:  0,
		Usage:  Usage{Tokens: resp.tokens()},
	}, nil
}

// EmbedBatch embeds all non-blank texts in one request. Blank inputs are dropped;
// each result's Index is the position of its text in texts. The provider reports a
// single token count, which is split evenly across results.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	if !c.IsConfigured() {
		return nil, models.NewConfigurationError("embedding provider is not configured: endpoint, api key and deployment or model are required")
	}
	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		inputs = append(inputs, t)
		positions = append(positions, i)
	}
	if len(inputs) == 0 {
		return []*Result{}, nil
	}

	resp, err := c.post(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	perItem := int(math.Round(float64(resp.tokens()) / float64(len(inputs))))
	model := c.modelName(resp)
	results := make([]*Result, len(resp.Data))
	for i, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(positions) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		results[i] = &Result{
			Vector: d.Embedding,
			Model:  model,
			Index:  positions[d.Index],
			Usage:  Usage{Tokens: perItem},
		}
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, inputs []string) (*embeddingsResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload := embeddingsRequest{Input: inputs}
	if c.cfg.Provider != ProviderAzure {
		payload.Model = c.cfg.Model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Provider == ProviderAzure {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("embedding request failed",
			zap.Int("status", resp.StatusCode),
			zap.Int("inputs", len(inputs)))
		return nil, &models.UpstreamError{
			Provider:   "embedding provider",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	var out embeddingsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for _, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
	}
	c.logger.Debug("embedded texts",
		zap.Int("inputs", len(inputs)),
		zap.Int("tokens", out.tokens()),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}

func (c *Client) endpointURL() string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	if c.cfg.Provider == ProviderAzure {
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			base, url.PathEscape(c.cfg.Deployment), url.QueryEscape(c.cfg.APIVersion))
	}
	return base + "/v1/embeddings"
}

func (c *Client) modelName(resp *embeddingsResponse) string {
	if c.cfg.Model != "" {
		return c.cfg.Model
	}
	return resp.Model
}

func (r *embeddingsResponse) tokens() int {
	if r.Usage.TotalTokens > 0 {
		return r.Usage.TotalTokens
	}
	return r.Usage.PromptTokens
}
