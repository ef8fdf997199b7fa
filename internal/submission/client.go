package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/platform/observability"
)

const (
	submitPath = "/api/submit-free-search"
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
	// IdempotencyHeader carries the submission id so retries are deduplicated.
	IdempotencyHeader = "Idempotency-Key"
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Field is one multipart text field. Order is preserved on the wire.
type Field struct {
	Name  string
	Value string
}

// FilePart is one multipart file.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Payload is a complete submission request.
type Payload struct {
	SearchID string
	Fields   []Field
	Files    []FilePart
}

// Sender delivers payloads to the backend.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// Client talks to the lead backend's submission endpoint.
type Client struct {
	base    *url.URL
	client  HTTPClient
	timeout time.Duration
}

// NewClient constructs a Client for the backend at baseURL.
func NewClient(baseURL string, client HTTPClient, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("submission: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("submission: parse base URL: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: parsed, client: client, timeout: timeout}, nil
}

// Send posts the payload as multipart/form-data. Any non-2xx status is an error.
func (c *Client) Send(ctx context.Context, p Payload) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeMultipart(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(submitPath, nil), body)
	if err != nil {
		return fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(IdempotencyHeader, p.SearchID)

	resp, err := c.do(ctx, "submission.send", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Lookup fetches a previously submitted lead.
func (c *Client) Lookup(ctx context.Context, searchID string) (leads.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{"search_id": []string{searchID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(submitPath, q), nil)
	if err != nil {
		return leads.Record{}, fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, "submission.lookup", req)
	if err != nil {
		return leads.Record{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return leads.Record{}, fmt.Errorf("%w: %s", leads.ErrNotFound, searchID)
	}
	if resp.StatusCode != http.StatusOK {
		return leads.Record{}, errorFromResponse(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return leads.Record{}, fmt.Errorf("submission: read lookup: %w", err)
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Search json.RawMessage `json:"search"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		switch {
		case len(envelope.Data) > 0 && envelope.Data[0] == '{':
			raw = envelope.Data
		case len(envelope.Search) > 0 && envelope.Search[0] == '{':
			raw = envelope.Search
		}
	}
	var rec leads.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return leads.Record{}, fmt.Errorf("submission: decode lookup: %w", err)
	}
	if rec.ID == "" {
		rec.ID = searchID
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, span string, req *http.Request) (*http.Response, error) {
	_, end := observability.StartClientSpan(ctx, span, req)
	resp, err := c.client.Do(req)
	if err != nil {
		end(0, err)
		return nil, fmt.Errorf("submission: request failed: %w", err)
	}
	end(resp.StatusCode, nil)
	return resp, nil
}

func (c *Client) resolve(endpoint string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.base.ResolveReference(ref).String()
}

func encodeMultipart(p Payload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range p.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("submission: write field %s: %w", f.Name, err)
		}
	}
	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("submission: create part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("submission: write part %s: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("submission: close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Message + " " + payload.Error); msg != "" {
			return fmt.Errorf("submission: backend error (%d): %s", resp.StatusCode, msg)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("submission: backend error (%d): %s", resp.StatusCode, text)
	}
	return fmt.Errorf("submission: backend error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
