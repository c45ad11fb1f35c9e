// Package resource fetches protected content from the portfolio backend with
// the session's bearer credential.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"portfolio-backend/internal/session"

	"go.uber.org/zap"
)

// ErrRemoteUnauthorized means the backend rejected the credential with 401.
// The session has been revoked by the time it is returned.
var ErrRemoteUnauthorized = errors.New("remote rejected credential")

// RemoteFailureError is any other non-success response. It is never retried.
type RemoteFailureError struct {
	StatusCode int
	Message    string
}

func (e *RemoteFailureError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote failure: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote failure: status %d: %s", e.StatusCode, e.Message)
}

// Result is the protected-content response body.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// Client talks to the protected resource backend.
type Client struct {
	source  session.CredentialSource
	http    *http.Client
	baseURL *url.URL
	logger  *zap.Logger
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(source session.CredentialSource, baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q: scheme and host required", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{source: source, http: httpClient, baseURL: u, logger: logger}, nil
}

// FetchProtected GETs path with the bearer credential and decodes the
// {success, content} body.
func (c *Client) FetchProtected(ctx context.Context, path string) (*Result, error) {
	var result Result
	if err := c.GetJSON(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJSON GETs path with the bearer credential and decodes the JSON body
// into out. Without a credential no request is made.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	token, err := c.source.Credential(ctx)
	if err != nil {
		return err
	}

	target, err := c.resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Info("protected resource rejected credential", zap.String("url", target))
		c.source.Revoke(ctx)
		return ErrRemoteUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &RemoteFailureError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid resource path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return "", fmt.Errorf("invalid resource path %q: must be relative to the api base url", path)
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return base.ResolveReference(ref).String(), nil
}

// errorMessage pulls {"error": "..."} or {"message": "..."} out of a failed
// response body.
func errorMessage(body io.Reader) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
