// Package client talks to the document API over HTTP and keeps client-side views of it
// coherent across mutations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docfabric/internal/model"
)

const defaultTimeout = 60 * time.Second

// Client is a typed HTTP client for the document API. It never retries.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client rooted at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

// do sends req and returns the response when its status is 2xx. Otherwise the body is
// decoded into an *APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
	var body struct {
		RequestID string `json:"request_id"`
		Detail    string `json:"detail"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Detail = body.Detail
		if apiErr.Detail == "" {
			apiErr.Detail = body.Error.Message
		}
		if body.RequestID != "" {
			apiErr.RequestID = body.RequestID
		}
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrTransport, path, err)
	}
	return nil
}

func docPath(id string) string {
	return "/documents/" + url.PathEscape(id)
}

// List fetches one page of documents.
func (c *Client) List(ctx context.Context, limit, offset int) (*model.DocumentList, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out model.DocumentList
	if err := c.getJSON(ctx, "/documents", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one document's metadata.
func (c *Client) Get(ctx context.Context, id string) (*model.Document, error) {
	var out model.Document
	if err := c.getJSON(ctx, docPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Content fetches a window of a document's text. A negative limit reads to the end.
func (c *Client) Content(ctx context.Context, id string, offset, limit int) (*model.DocumentContent, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out model.DocumentContent
	if err := c.getJSON(ctx, docPath(id)+"/content", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// multipartUpload buffers r into a multipart body with a "file" part plus extra fields.
func multipartUpload(filename string, r io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", ErrInvalidInput, filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func (c *Client) sendFile(ctx context.Context, method, path, filename string, r io.Reader, fields map[string]string) (*model.Document, error) {
	body, contentType, err := multipartUpload(filename, r, fields)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out model.Document
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrTransport, path, err)
	}
	return &out, nil
}

// Upload creates a document from r. metadata may be nil.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, metadata map[string]string) (*model.Document, error) {
	var fields map[string]string
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		fields = map[string]string{"metadata": string(raw)}
	}
	return c.sendFile(ctx, http.MethodPost, "/documents", filename, r, fields)
}

// Replace swaps the content of an existing document.
func (c *Client) Replace(ctx context.Context, id, filename string, r io.Reader) (*model.Document, error) {
	return c.sendFile(ctx, http.MethodPut, docPath(id), filename, r, nil)
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint(docPath(id), nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Download streams the original bytes. The caller closes the returned reader. filename
// comes from Content-Disposition and may be empty.
func (c *Client) Download(ctx context.Context, id string) (rc io.ReadCloser, filename string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(docPath(id)+"/original", nil), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return resp.Body, filename, nil
}
