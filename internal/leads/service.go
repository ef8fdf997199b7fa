package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finitefield.org/trademark-web/internal/platform/observability"
)

// Service is the backend surface the admin panel needs.
type Service interface {
	List(ctx context.Context, status Status) (ListResult, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	TestConnection(ctx context.Context) (Probe, error)
}

// ListResult carries records plus an optional note. A malformed response is
// reported through Message with no records rather than as an error.
type ListResult struct {
	Records []Record
	Message string
}

// Probe is the outcome of a connection test.
type Probe struct {
	OK      bool
	Status  int
	Message string
	Latency time.Duration
}

// HTTPClient matches the subset of http.Client used by HTTPService.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

const (
	searchesPath   = "/api/admin/searches"
	connectionPath = "/api/debug-supabase-connection"
	// DefaultTimeout bounds every admin request.
	DefaultTimeout = 15 * time.Second
)

// HTTPService implements Service against the lead backend.
type HTTPService struct {
	base    *url.URL
	client  HTTPClient
	timeout time.Duration
	now     func() time.Time
}

// NewHTTPService constructs a Service for the backend at baseURL.
func NewHTTPService(baseURL string, client HTTPClient, timeout time.Duration) (*HTTPService, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("leads: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("leads: parse base URL: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPService{base: parsed, client: client, timeout: timeout, now: time.Now}, nil
}

// List fetches records, optionally filtered by status. A cache-busting
// timestamp is always sent.
func (s *HTTPService) List(ctx context.Context, status Status) (ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	q.Set("t", strconv.FormatInt(s.now().UnixMilli(), 10))

	req, err := s.newRequest(ctx, http.MethodGet, searchesPath, q, nil)
	if err != nil {
		return ListResult{}, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := s.do(ctx, "leads.list", req)
	if err != nil {
		return ListResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ListResult{}, errorFromResponse(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return ListResult{}, fmt.Errorf("leads: read list: %w", err)
	}
	return decodeList(body), nil
}

// UpdateStatus requests a status transition for one record.
func (s *HTTPService) UpdateStatus(ctx context.Context, id string, status Status) error {
	if _, ok := ParseStatus(string(status)); !ok {
		return ErrInvalidStatus
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var buf bytes.Buffer
	payload := map[string]string{"searchId": id, "status": string(status)}
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("leads: encode payload: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPatch, searchesPath, nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(ctx, "leads.update_status", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TestConnection calls the backend's database probe.
func (s *HTTPService) TestConnection(ctx context.Context) (Probe, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, connectionPath, nil, nil)
	if err != nil {
		return Probe{}, err
	}
	started := s.now()
	resp, err := s.do(ctx, "leads.test_connection", req)
	if err != nil {
		return Probe{Message: err.Error(), Latency: s.now().Sub(started)}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	probe := Probe{
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:  resp.StatusCode,
		Latency: s.now().Sub(started),
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		probe.Message = firstNonEmpty(payload.Message, payload.Error)
	}
	if probe.Message == "" {
		probe.Message = http.StatusText(resp.StatusCode)
	}
	if !probe.OK {
		return probe, fmt.Errorf("leads: connection test failed (%d): %s", resp.StatusCode, probe.Message)
	}
	return probe, nil
}

func (s *HTTPService) do(ctx context.Context, span string, req *http.Request) (*http.Response, error) {
	_, end := observability.StartClientSpan(ctx, span, req)
	resp, err := s.client.Do(req)
	if err != nil {
		end(0, err)
		return nil, fmt.Errorf("leads: request failed: %w", err)
	}
	end(resp.StatusCode, nil)
	return resp, nil
}

func (s *HTTPService) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("leads: build request: %w", err)
	}
	return req, nil
}

// decodeList accepts a bare array or an object wrapping one.
func decodeList(body []byte) ListResult {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ListResult{Message: "The backend returned an empty response."}
	}
	if !json.Valid(trimmed) {
		return ListResult{Message: "The backend returned a response that is not JSON."}
	}

	var records []Record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return ListResult{Message: "The backend returned malformed records: " + err.Error()}
		}
		return ListResult{Records: records}
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return ListResult{Message: "The backend returned an unexpected payload."}
	}
	for _, key := range []string{"searches", "data", "records"} {
		raw, ok := wrapped[key]
		if !ok || len(raw) == 0 || raw[0] != '[' {
			continue
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return ListResult{Message: "The backend returned malformed records: " + err.Error()}
		}
		return ListResult{Records: records}
	}

	msg := "The backend response did not contain a list of searches."
	if raw, ok := wrapped["error"]; ok {
		var text string
		if json.Unmarshal(raw, &text) == nil && text != "" {
			msg = text
		}
	}
	return ListResult{Message: msg}
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := firstNonEmpty(payload.Message, payload.Error); msg != "" {
			return fmt.Errorf("leads: backend error (%d): %s", resp.StatusCode, msg)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("leads: backend error (%d): %s", resp.StatusCode, text)
	}
	return fmt.Errorf("leads: backend error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
