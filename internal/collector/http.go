package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cb "github.com/sony/gobreaker"
)

// HTTPSource pulls snapshots from the extraction service REST API.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	breaker *cb.CircuitBreaker
}

// NewHTTPSource creates a source with optional proxy support. Three
// consecutive failures open the breaker for a minute.
func NewHTTPSource(baseURL, apiKey, proxyURL string) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	st := cb.Settings{Name: "ipo-snapshot"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		breaker: cb.NewCircuitBreaker(st),
	}
}

func (h *HTTPSource) Name() string { return "http" }

// Fetch GETs {base}/api/v1/ipos through the circuit breaker.
func (h *HTTPSource) Fetch(ctx context.Context) (*Snapshot, error) {
	v, err := h.breaker.Execute(func() (interface{}, error) {
		return h.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (h *HTTPSource) fetch(ctx context.Context) (*Snapshot, error) {
	endpoint := h.BaseURL + "/api/v1/ipos"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch snapshot: status %d, body: %s", resp.StatusCode, string(body))
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Source == "" {
		snap.Source = h.Name()
	}
	return &snap, nil
}
