// Package controller talks to the router's external controller, the HTTP
// API configured by the external-controller and secret keys of the running
// configuration.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sskaje/clashctl/internal/tree"
)

// Keys read from the merged document.
const (
	KeyController = "external-controller"
	KeySecret     = "secret"
	KeyExternalUI = "external-ui"
)

// ErrNoController is returned when the document does not enable the
// external controller.
var ErrNoController = errors.New("external-controller is not configured")

// APIError is a non-2xx answer of the controller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("controller returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("controller returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the external controller.
type Client struct {
	// BaseURL is scheme and authority, e.g. http://127.0.0.1:9090.
	BaseURL string
	Secret  string
	// UIPath is the path the controller serves dashboards under.
	UIPath string
	HTTP   *http.Client
}

// FromDocument builds a client from a merged configuration.
func FromDocument(doc *tree.Mapping) (*Client, error) {
	v, ok := doc.Get(KeyController)
	if !ok {
		return nil, ErrNoController
	}
	addr, ok := v.(tree.Scalar)
	if !ok || strings.TrimSpace(addr.Value) == "" {
		return nil, ErrNoController
	}

	host, port, err := net.SplitHostPort(strings.TrimSpace(addr.Value))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", KeyController, addr.Value, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}

	c := &Client{
		BaseURL: "http://" + net.JoinHostPort(host, port),
		UIPath:  "/ui",
	}
	if s, ok := doc.Get(KeySecret); ok {
		if secret, ok := s.(tree.Scalar); ok && secret.Tag != tree.TagNull {
			c.Secret = secret.Value
		}
	}
	return c, nil
}

type reloadRequest struct {
	Path string `json:"path"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Reload asks the router to load the configuration at path, a path as seen
// by the router process.
func (c *Client) Reload(ctx context.Context, path string) error {
	body, err := json.Marshal(reloadRequest{Path: path})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/configs?force=true", body, nil)
}

// Version returns the router version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
		Meta    bool   `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.Secret)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e errorResponse
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Message
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
		}
	}
	return nil
}

// DashboardURLs returns a link to each dashboard served by the controller.
// The secret is passed in the fragment the dashboards read it from.
func (c *Client) DashboardURLs(names []string) []string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil
	}
	urls := make([]string, 0, len(names))
	for _, name := range names {
		link := fmt.Sprintf("%s%s/%s/", c.BaseURL, strings.TrimSuffix(c.UIPath, "/"), name)
		q := url.Values{}
		q.Set("hostname", u.Hostname())
		q.Set("port", u.Port())
		if c.Secret != "" {
			q.Set("secret", c.Secret)
		}
		urls = append(urls, link+"#/?"+q.Encode())
	}
	return urls
}
