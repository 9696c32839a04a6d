package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/model"
)

// BackendOptions tunes the HTTP backend.
type BackendOptions struct {
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	BreakerCooldown  time.Duration
}

// HTTPBackend executes catalog queries over HTTP. It implements
// model.QueryBackend: one logical fetch per call, with a circuit breaker
// per backend service. Retry policy lives in the cache engine, not here.
type HTTPBackend struct {
	catalog  *Catalog
	client   *http.Client
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewHTTPBackend creates a backend for every service the catalog mentions.
func NewHTTPBackend(c *Catalog, opts BackendOptions, logger *zap.Logger) *HTTPBackend {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breakers := make(map[string]*CircuitBreaker)
	for _, name := range c.Names() {
		spec, _ := c.Lookup(name)
		if _, ok := breakers[spec.ServiceID]; !ok {
			breakers[spec.ServiceID] = NewCircuitBreaker(
				opts.FailureThreshold, opts.SuccessThreshold, opts.BreakerCooldown)
		}
	}

	return &HTTPBackend{
		catalog: c,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breakers: breakers,
		logger:   logger,
	}
}

// Fetch implements model.QueryBackend.
func (b *HTTPBackend) Fetch(ctx context.Context, queryName string, params map[string]any) (any, error) {
	spec, ok := b.catalog.Lookup(queryName)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("query %q is not in the catalog", queryName))
	}

	breaker := b.breakers[spec.ServiceID]
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, model.NewBackendUnavailableError()
		}
	}

	req, err := b.buildRequest(ctx, spec, params)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		if isConnectionError(err) {
			return nil, model.NewBackendUnavailableError()
		}
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, model.NewBackendTimeoutError()
		}
		return nil, fmt.Errorf("catalog: query %q: %w", queryName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return nil, fmt.Errorf("catalog: read response for %q: %w", queryName, err)
	}

	if breaker != nil {
		if resp.StatusCode >= 500 {
			breaker.RecordFailure()
		} else if resp.StatusCode < 400 {
			breaker.RecordSuccess()
		}
	}

	if resp.StatusCode >= 400 {
		b.logger.Warn("query returned error status",
			zap.String("query", queryName),
			zap.Int("status", resp.StatusCode))
		if resp.StatusCode >= 500 {
			return nil, model.NewBackendUnavailableError()
		}
		return nil, model.NewBadRequestError(
			fmt.Sprintf("query %q rejected with status %d", queryName, resp.StatusCode))
	}

	if len(body) == 0 {
		return nil, nil
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("catalog: decode response for %q: %w", queryName, err)
	}
	return parsed, nil
}

// buildRequest places parameters where the operation expects them: path
// template slots first, then query string for bodyless methods, JSON body
// otherwise.
func (b *HTTPBackend) buildRequest(ctx context.Context, spec QuerySpec, params map[string]any) (*http.Request, error) {
	path := spec.PathTemplate
	remaining := make(map[string]any, len(params))
	for k, v := range params {
		remaining[k] = v
	}
	for _, name := range spec.PathParams {
		v, ok := remaining[name]
		if !ok {
			return nil, model.NewBadRequestError(
				fmt.Sprintf("query %q is missing path parameter %q", spec.Name, name))
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprint(v)))
		delete(remaining, name)
	}

	reqURL := spec.BaseURL + path
	var body io.Reader

	if spec.Method == http.MethodGet || spec.Method == http.MethodDelete || spec.Method == http.MethodHead {
		if len(remaining) > 0 {
			values := url.Values{}
			for k, v := range remaining {
				values.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + values.Encode()
		}
	} else if len(remaining) > 0 {
		raw, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("catalog: marshal body for %q: %w", spec.Name, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request for %q: %w", spec.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
