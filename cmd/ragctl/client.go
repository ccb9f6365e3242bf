package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IngestResponse matches internal/http IngestResponse
type IngestResponse struct {
	Inserted int `json:"inserted"`
}

// AskRequest matches internal/http AskRequest
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse matches rag.Answer
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// StatusResponse matches the /health and /llm_test bodies
type StatusResponse struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

// ServerError is a non-200 response from the server.
type ServerError struct {
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ingest uploads the file at path as a multipart "file" field.
func (c *client) Ingest(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	var resp IngestResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", w.FormDataContentType(), &body, &resp); err != nil {
		return 0, err
	}
	return resp.Inserted, nil
}

// Ask posts a question and returns the grounded answer.
func (c *client) Ask(ctx context.Context, question string) (*AskResponse, error) {
	reqJSON, err := json.Marshal(AskRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var resp AskResponse
	if err := c.do(ctx, http.MethodPost, "/ask", "application/json", bytes.NewReader(reqJSON), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health calls GET /health.
func (c *client) Health(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Probe calls GET /llm_test.
func (c *client) Probe(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/llm_test", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return &ServerError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorDetail extracts the "detail" field of an error body, falling back to
// the raw body.
func errorDetail(raw []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(raw))
}

// IsServerError reports whether err is a ServerError with the given status.
func IsServerError(err error, status int) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode == status
}
