// Package generation provides the text generation client used to answer questions.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/logging"
	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ServiceName identifies the generation service in upstream errors.
const ServiceName = "Ollama"

// PingPrompt is the prompt sent by Ping.
const PingPrompt = "ping"

var tracer = otel.Tracer("raglab.generation")

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds configuration for the Ollama client.
type Config struct {
	// BaseURL is the Ollama address, e.g. http://localhost:11434.
	BaseURL string

	// Model is the generation model identifier, e.g. gemma3:4b.
	Model string

	// Timeout bounds a Generate call.
	// Default: 120s
	Timeout time.Duration

	// PingTimeout bounds a Ping call.
	// Default: 60s
	PingTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 60 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 || c.PingTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Client calls the Ollama /api/generate endpoint without streaming.
type Client struct {
	config  Config
	client  *http.Client
	logger  *zap.Logger
	metrics *Metrics
}

// NewClient creates a Client. The http client carries no timeout of its own;
// every call is bounded by a context deadline from the config.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:  config,
		client:  &http.Client{},
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// Generate sends prompt to the model and returns the generated text with
// surrounding whitespace trimmed. A missing response field yields "".
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "Client.Generate")
	defer span.End()

	start := time.Now()
	var genErr error
	defer func() {
		c.metrics.RecordCall(ctx, c.config.Model, "generate", time.Since(start), genErr)
	}()

	if ce := c.logger.Check(logging.TraceLevel, "generate request"); ce != nil {
		ce.Write(zap.String("model", c.config.Model), zap.String("prompt", prompt))
	}

	body, err := c.post(ctx, prompt, c.config.Timeout)
	if err != nil {
		genErr = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		genErr = upstream.Protocol(ServiceName, body, err)
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "unparseable response")
		return "", genErr
	}

	answer := ""
	if resp.Response != nil {
		answer = strings.TrimSpace(*resp.Response)
	}

	span.SetAttributes(attribute.Int("answer_length", len(answer)))
	span.SetStatus(codes.Ok, "success")
	return answer, nil
}

// Ping sends PingPrompt and reports whether the model answered with a
// success status. The response body is not parsed.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Client.Ping")
	defer span.End()

	start := time.Now()
	_, err := c.post(ctx, PingPrompt, c.config.PingTimeout)
	c.metrics.RecordCall(ctx, c.config.Model, "ping", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// post issues one generate request bounded by timeout and returns the body of
// a 2xx response. Transport failures and non-2xx statuses are classified.
func (c *Client) post(ctx context.Context, prompt string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("generation service unreachable",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, upstream.Unavailable(ServiceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.Unavailable(ServiceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("generation service returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.config.Model),
		)
		return nil, upstream.Status(ServiceName, resp.StatusCode, string(body))
	}

	return body, nil
}
