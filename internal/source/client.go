// Package source talks to one alert source's Alertmanager v2 API. Each fetch
// runs with its own timeout so a slow source never blocks the rest of a poll
// cycle.
package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/registry"
)

// Client fetches alerts and silences and issues silence commands against
// configured sources. One Client is shared across all sources; per-request
// state lives in the context.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a source client. timeout is the default per-fetch budget;
// sources may override it in their registry entry.
func NewClient(timeout time.Duration, insecureSkipVerify bool) *Client {
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecureSkipVerify},
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
	}
}

// Fetch retrieves the raw alerts and silences from one source. Alerts are
// requested including silenced ones so the aggregator sees the full picture.
func (c *Client) Fetch(ctx context.Context, src registry.Source) ([]alerts.RawAlert, []alerts.RawSilence, error) {
	ctx, cancel := c.withTimeout(ctx, src)
	defer cancel()

	params := url.Values{}
	params.Set("active", "true")
	params.Set("inhibited", "false")
	params.Set("silenced", "true")

	var rawAlerts []alerts.RawAlert
	if err := c.getJSON(ctx, src, "/api/v2/alerts", params, &rawAlerts); err != nil {
		return nil, nil, err
	}

	var rawSilences []alerts.RawSilence
	if err := c.getJSON(ctx, src, "/api/v2/silences", nil, &rawSilences); err != nil {
		return nil, nil, err
	}

	return rawAlerts, rawSilences, nil
}

// SilenceRequest is the upstream silence creation payload
type SilenceRequest struct {
	Matchers  []alerts.Matcher `json:"matchers"`
	StartsAt  time.Time        `json:"startsAt"`
	EndsAt    time.Time        `json:"endsAt"`
	CreatedBy string           `json:"createdBy"`
	Comment   string           `json:"comment"`
}

// CreateSilence posts a new silence to the source and returns the upstream id
func (c *Client) CreateSilence(ctx context.Context, src registry.Source, req SilenceRequest) (string, error) {
	ctx, cancel := c.withTimeout(ctx, src)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Source: src.Name, Op: "create silence", Err: err}
	}

	// Alertmanager responds {"silenceID": ...}, Grafana responds {"id": ...}
	var resp struct {
		SilenceID string `json:"silenceID"`
		ID        string `json:"id"`
	}
	if err := c.do(ctx, src, http.MethodPost, "/api/v2/silences", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.SilenceID != "" {
		return resp.SilenceID, nil
	}
	return resp.ID, nil
}

// DeleteSilence expires a silence upstream
func (c *Client) DeleteSilence(ctx context.Context, src registry.Source, silenceID string) error {
	ctx, cancel := c.withTimeout(ctx, src)
	defer cancel()
	return c.do(ctx, src, http.MethodDelete, "/api/v2/silence/"+url.PathEscape(silenceID), nil, nil, nil)
}

func (c *Client) withTimeout(ctx context.Context, src registry.Source) (context.Context, context.CancelFunc) {
	timeout := c.timeout
	if src.Timeout > 0 {
		timeout = src.Timeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) getJSON(ctx context.Context, src registry.Source, path string, params url.Values, dst interface{}) error {
	return c.do(ctx, src, http.MethodGet, path, params, nil, dst)
}

// do tries each candidate URL for the source in order and returns on the
// first success. Grafana hosts its Alertmanager under /api/alertmanager, so
// those prefixes are tried before the plain Alertmanager path.
func (c *Client) do(ctx context.Context, src registry.Source, method, path string, params url.Values, body []byte, dst interface{}) error {
	var lastErr error
	for _, u := range candidateURLs(src.BaseURL, path) {
		err := c.doOne(ctx, src, method, u, params, body, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		// auth failures and timeouts will not improve on another path
		if k := KindOf(err); k == KindAuthFailed || k == KindTimeout {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOne(ctx context.Context, src registry.Source, method, rawURL string, params url.Values, body []byte, dst interface{}) error {
	if params != nil {
		rawURL = rawURL + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return &Error{Kind: KindUnreachable, Source: src.Name, Op: method, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if src.Token != "" {
		req.Header.Set("Authorization", "Bearer "+src.Token)
	} else if src.User != "" {
		req.SetBasicAuth(src.User, src.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: classifyTransportError(err), Source: src.Name, Op: method, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuthFailed, Source: src.Name, Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Source: src.Name, Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &Error{Kind: KindUnreachable, Source: src.Name, Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if dst == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &Error{Kind: KindMalformed, Source: src.Name, Op: method, Err: err}
	}
	return nil
}

func classifyTransportError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}

// candidateURLs builds the URL fallback chain for a source base URL
func candidateURLs(baseURL, path string) []string {
	base := strings.TrimRight(baseURL, "/")
	return []string{
		base + "/api/alertmanager/grafana" + path,
		base + "/api/alertmanager" + path,
		base + path,
	}
}
