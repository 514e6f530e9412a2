// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/mapview/lib/netutil"
	"github.com/bureau-foundation/mapview/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// URL is the portal's sharing REST base, for example
	// "https://www.arcgis.com/sharing/rest/". A missing trailing slash
	// is added.
	URL string
	// HTTPClient is used for all requests. If nil, a client with
	// Timeout is created.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil. Defaults to
	// 30 seconds.
	Timeout time.Duration
	// Referer is sent with generateToken. Defaults to the portal URL.
	Referer string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated portal client. It holds the base URL and
// HTTP transport, shared across Sessions.
type Client struct {
	baseURL    string
	referer    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated portal client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("portal: URL is required")
	}
	parsed, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("portal: invalid URL %q: %w", config.URL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("portal: URL %q must be http or https", config.URL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(config.URL, "/") + "/"
	referer := config.Referer
	if referer == "" {
		referer = baseURL
	}

	return &Client{
		baseURL:    baseURL,
		referer:    referer,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the portal REST base, ending in a slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Anonymous returns a session that sends no token.
func (c *Client) Anonymous() *Session {
	return &Session{client: c}
}

// Login exchanges username and password for a token. The password
// Buffer is copied; the caller retains ownership of password. The
// caller must Close the returned Session.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("portal: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("portal: password is required for login")
	}

	passwordCopy, err := password.Clone()
	if err != nil {
		return nil, fmt.Errorf("portal: protecting password: %w", err)
	}
	session := &Session{
		client:   c,
		username: username,
		password: passwordCopy,
	}
	if err := session.refreshToken(ctx); err != nil {
		session.Close()
		return nil, err
	}

	c.logger.Info("logged in to portal",
		"portal", c.baseURL,
		"username", username,
	)
	return session, nil
}

// GenerateToken calls generateToken. Most callers want Login.
func (c *Client) GenerateToken(ctx context.Context, username string, password *secret.Buffer) (*Token, error) {
	// Password is converted to string at the form-encoding boundary.
	form := url.Values{
		"username":   {username},
		"password":   {password.String()},
		"referer":    {c.referer},
		"client":     {"referer"},
		"expiration": {"60"},
	}
	body, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"generateToken", nil, form)
	if err != nil {
		return nil, fmt.Errorf("portal: generate token failed: %w", err)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("portal: failed to parse token response: %w", err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("portal: generate token returned no token")
	}
	return &token, nil
}

// doRequest performs a request and returns the response body. requestURL
// is absolute. form, when non-nil, is sent form-encoded. f=json is
// always added. On a non-2xx status or an {"error": ...} body, returns
// a *PortalError.
func (c *Client) doRequest(ctx context.Context, method, requestURL string, query url.Values, form url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	var bodyReader io.Reader
	if form != nil {
		form.Set("f", "json")
		bodyReader = bytes.NewReader([]byte(form.Encode()))
	} else {
		query.Set("f", "json")
	}
	if len(query) > 0 {
		separator := "?"
		if strings.Contains(requestURL, "?") {
			separator = "&"
		}
		requestURL += separator + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("portal: failed to create request: %w", err)
	}
	if form != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("portal: request to %s %s failed: %w", method, redactQuery(requestURL), err)
	}
	defer response.Body.Close()

	var envelope errorEnvelope
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		errorBody := netutil.ErrorBody(response.Body)
		if err := json.Unmarshal([]byte(errorBody), &envelope); err != nil || envelope.Error == nil {
			return nil, &PortalError{
				Code:       response.StatusCode,
				Message:    strings.TrimSpace(errorBody),
				StatusCode: response.StatusCode,
			}
		}
		envelope.Error.StatusCode = response.StatusCode
		return nil, envelope.Error
	}

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("portal: failed to read response body: %w", err)
	}
	// The portal reports most failures inside a 200 response.
	if json.Unmarshal(responseBody, &envelope) == nil && envelope.Error != nil {
		envelope.Error.StatusCode = response.StatusCode
		return nil, envelope.Error
	}
	return responseBody, nil
}

// redactQuery strips the query string, which may carry a token, from a
// URL before it appears in an error.
func redactQuery(requestURL string) string {
	if index := strings.IndexByte(requestURL, '?'); index >= 0 {
		return requestURL[:index]
	}
	return requestURL
}
