// Package transport talks to the question-answering service over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/document"
)

const (
	defaultTimeout   = 120 * time.Second
	maxErrorBodySize = 4 << 10 // 4KB
	requestIDHeader  = "X-Request-ID"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client performs exactly one attempt per call; there are no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the service at baseURL. If timeout is <= 0,
// it defaults to 120s.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewClientWithHTTPClient creates a client using hc (for testing).
func NewClientWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := NewClient(baseURL, 0, nil)
	c.httpClient = hc
	return c
}

type uploadResponse struct {
	DocumentID json.RawMessage `json:"document_id"`
}

// Upload sends file as the multipart field "file" to /upload-pdf and returns
// the server-issued document id.
func (c *Client) Upload(ctx context.Context, file document.FileHandle) (string, error) {
	body, contentType, err := encodeUpload(file)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-pdf", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}

	id, err := normalizeID(resp.DocumentID)
	if err != nil {
		return "", err
	}
	return id, nil
}

func encodeUpload(file document.FileHandle) (io.Reader, string, error) {
	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", file.Name(), err)
	}
	defer src.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name()))
	h.Set("Content-Type", file.Type())
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", file.Name(), err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// normalizeID accepts the id as a JSON string or number.
func normalizeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("response has no document_id")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("response has empty document_id")
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("decoding document_id %s: %w", string(raw), err)
	}
	return n.String(), nil
}

type askResponse struct {
	Answer *string `json:"answer"`
}

// Ask sends question about documentID to /ask-question and returns the
// answer exactly as received.
func (c *Client) Ask(ctx context.Context, question, documentID string) (string, error) {
	q := url.Values{}
	q.Set("question", question)
	q.Set("document_id", documentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ask-question?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	var resp askResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Answer == nil {
		return "", fmt.Errorf("response has no answer")
	}
	return *resp.Answer, nil
}

func (c *Client) do(req *http.Request, v any) error {
	reqID := uuid.New().String()
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "request_id", reqID, "method", req.Method, "path", req.URL.Path, "error", err)
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"request_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
