package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Page describes the printable area in inches. Margin applies to all edges.
type Page struct {
	Width  float64
	Height float64
	Margin float64
}

// A4 is the label sheet layout used unless a client is told otherwise.
var A4 = Page{Width: 8.27, Height: 11.7, Margin: 0.4}

func (p Page) fields() map[string]string {
	in := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		"paperWidth":      in(p.Width),
		"paperHeight":     in(p.Height),
		"marginTop":       in(p.Margin),
		"marginBottom":    in(p.Margin),
		"marginLeft":      in(p.Margin),
		"marginRight":     in(p.Margin),
		"printBackground": "true",
	}
}

// StatusError is returned when Gotenberg answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gotenberg: status %d", e.Code)
	}
	return fmt.Sprintf("gotenberg: status %d: %s", e.Code, e.Body)
}

// Client talks to a Gotenberg instance's Chromium module.
type Client struct {
	base string
	http *http.Client
	page Page
}

type Option func(*Client)

// WithPage overrides the page layout. Non-positive sizes are ignored.
func WithPage(p Page) Option {
	return func(c *Client) {
		if p.Width > 0 && p.Height > 0 && p.Margin >= 0 {
			c.page = p
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		page: A4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping calls Gotenberg's /health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// RenderHTML uploads html as index.html and returns the generated PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	file, err := form.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(file, html); err != nil {
		return nil, err
	}
	for name, value := range c.page.fields() {
		if err := form.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/forms/chromium/convert/html", form.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// do sends the request and converts error statuses into *StatusError. The
// caller owns the body of a successful response.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg %s: %w", path, err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}
