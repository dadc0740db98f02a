// Package httpclient wraps the TourVerse REST backend behind a small
// client that normalizes every transport and server failure into a
// domain.APIError.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/storage"
)

// TokenSource supplies the current bearer token, empty when anonymous.
type TokenSource interface {
	Token() string
}

// Client is the configured HTTP client for the traveler API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	storage domain.Storage
}

// New creates a client rooted at baseURL with a fixed request timeout.
// The storage is touched only by the 401 path, which clears the persisted
// session record before the error is returned.
func New(baseURL string, timeout time.Duration, tokens TokenSource, store domain.Storage) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		storage: store,
	}
}

// Response is a successful (2xx) API response.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Message extracts a human-readable message from the body: a JSON
// {"message": ...} envelope when present, the raw text otherwise.
func (r *Response) Message() string {
	return extractMessage(r.Body)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.send(ctx, http.MethodGet, path, "", nil)
}

// Post issues a POST request with a JSON body (nil for an empty body).
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.send(ctx, http.MethodDelete, path, "", nil)
}

// PostForm issues a POST request with a multipart form body.
func (c *Client) PostForm(ctx context.Context, path string, fields map[string]string, file *domain.Upload) (*Response, error) {
	return c.sendForm(ctx, http.MethodPost, path, fields, file)
}

// PutForm issues a PUT request with a multipart form body.
func (c *Client) PutForm(ctx context.Context, path string, fields map[string]string, file *domain.Upload) (*Response, error) {
	return c.sendForm(ctx, http.MethodPut, path, fields, file)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	return c.send(ctx, method, path, "application/json", reader)
}

func (c *Client) sendForm(ctx context.Context, method, path string, fields map[string]string, file *domain.Upload) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile("profilePicture", file.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form body: %w", err)
	}
	return c.send(ctx, method, path, w.FormDataContentType(), &buf)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, domain.NewAPIError(domain.KindGeneric, 0, err.Error())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAPIError(domain.KindUnreachable, 0, "")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{Status: resp.StatusCode, Body: payload}, nil
	}
	return nil, c.statusError(resp.StatusCode, payload)
}

// transportError classifies failures where no response was received.
func (c *Client) transportError(err error) *domain.APIError {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewAPIError(domain.KindTimeout, 0, "")
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewAPIError(domain.KindTimeout, 0, "")
	}
	return domain.NewAPIError(domain.KindUnreachable, 0, "")
}

// statusError maps a non-2xx response onto the error taxonomy. The 401
// branch is the only place the client mutates durable storage itself.
func (c *Client) statusError(status int, body []byte) *domain.APIError {
	message := extractMessage(body)

	switch {
	case status == http.StatusUnauthorized:
		c.storage.Remove(storage.TokenKey)
		c.storage.Remove(storage.UserKey)
		return domain.NewAPIError(domain.KindUnauthorized, status, "")
	case status == http.StatusForbidden:
		return domain.NewAPIError(domain.KindForbidden, status, message)
	case status == http.StatusNotFound:
		return domain.NewAPIError(domain.KindNotFound, status, message)
	case status == http.StatusConflict:
		return domain.NewAPIError(domain.KindConflict, status, message)
	case status >= 500:
		return domain.NewAPIError(domain.KindServerError, status, message)
	default:
		return domain.NewAPIError(domain.KindGeneric, status, message)
	}
}

// extractMessage pulls a display message out of an API payload. The
// backend answers with either a bare string or a {"message": ...} /
// {"error": ...} envelope.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	var plain string
	if err := json.Unmarshal(body, &plain); err == nil {
		return plain
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	return ""
}
