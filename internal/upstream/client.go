package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProgressFunc is invoked after every fetched page with the cumulative
// record count and a human-readable phase message.
type ProgressFunc func(fetched int, phase string)

// Client is the paginated client for the upstream customer API.
type Client struct {
	http        *resty.Client
	baseURL     string
	app         string
	pageSize    int
	maxAttempts int
	pagePause   time.Duration
}

// Config holds configuration for the upstream client.
type Config struct {
	BaseURL       string
	AppCredential string
	PageSize      int
	Timeout       time.Duration
	MaxAttempts   int
	PagePause     time.Duration
}

// NewClient creates a new upstream client.
// Parameters:
//   - cfg: upstream configuration including base URL and app credential.
// Returns:
//   - *Client: initialized client with timeout configured.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	} else {
		client.SetTimeout(60 * time.Second)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Client{
		http:        client,
		baseURL:     cfg.BaseURL,
		app:         cfg.AppCredential,
		pageSize:    pageSize,
		maxAttempts: maxAttempts,
		pagePause:   cfg.PagePause,
	}
}

// pageRequest is the POST body of one page fetch.
type pageRequest struct {
	Token             string `json:"token"`
	App               string `json:"app_credential"`
	Limit             int    `json:"limit"`
	Offset            int    `json:"offset"`
	ActiveOnly        bool   `json:"active_only,omitempty"`
	ActiveContracts   bool   `json:"active_contracts_only,omitempty"`
	ChangedWithinDays int    `json:"changed_within_days,omitempty"`
	RegisteredFrom    string `json:"registered_from,omitempty"`
	RegisteredTo      string `json:"registered_to,omitempty"`
}

// pageResponse is the body of one page fetch. An absent or empty `clientes`
// array signals the end of pages.
type pageResponse struct {
	Clientes []ExternalClient `json:"clientes"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// FetchAll retrieves every record matching the filters, page by page,
// reporting cumulative progress after each page. Pagination stops on an
// empty page, a short tail page, or when filters.MaxRecords is reached.
func (c *Client) FetchAll(ctx context.Context, token string, filters Filters, progress ProgressFunc) ([]ExternalClient, error) {
	var all []ExternalClient
	offset := 0

	for {
		page, err := c.fetchPageWithRetry(ctx, token, filters, offset)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		if filters.MaxRecords > 0 && len(all) >= filters.MaxRecords {
			all = all[:filters.MaxRecords]
		}

		if progress != nil {
			progress(len(all), fmt.Sprintf("fetched %d records from upstream", len(all)))
		}

		if len(page) == 0 || len(page) < c.pageSize {
			break
		}
		if filters.MaxRecords > 0 && len(all) >= filters.MaxRecords {
			break
		}

		offset += c.pageSize

		// Brief pause between pages to avoid overwhelming the upstream
		if c.pagePause > 0 {
			if err := sleepContext(ctx, c.pagePause); err != nil {
				return nil, err
			}
		}
	}

	return all, nil
}

// fetchPageWithRetry wraps one page request in retry-with-backoff.
// Transient failures are retried with exponentially increasing delay
// (2^attempt seconds); classified non-transient failures surface immediately.
func (c *Client) fetchPageWithRetry(ctx context.Context, token string, filters Filters, offset int) ([]ExternalClient, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		page, err := c.fetchPage(ctx, token, filters, offset)
		if err == nil {
			return page, nil
		}

		var ue *Error
		if errors.As(err, &ue) && !ue.Retryable() {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upstream fetch failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) fetchPage(ctx context.Context, token string, filters Filters, offset int) ([]ExternalClient, error) {
	req := pageRequest{
		Token:             token,
		App:               c.app,
		Limit:             c.pageSize,
		Offset:            offset,
		ActiveOnly:        filters.ActiveOnly,
		ActiveContracts:   filters.ActiveContractsOnly,
		ChangedWithinDays: filters.ChangedWithinDays,
		RegisteredFrom:    filters.RegisteredFrom,
		RegisteredTo:      filters.RegisteredTo,
	}

	var resp pageResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/clientes")

	if err != nil {
		// Transport-level failure: timeout, connection reset, DNS
		return nil, &Error{Kind: KindTransient, Msg: err.Error(), Err: err}
	}

	status := httpResp.StatusCode()
	if status < 200 || status >= 300 {
		// resty only unmarshals SetResult on 2xx; parse the error body
		// best-effort so classified failures keep the upstream's message
		_ = json.Unmarshal(httpResp.Body(), &resp)
	}
	switch {
	case status >= 200 && status < 300:
		return resp.Clientes, nil
	case status == 401 || status == 403:
		return nil, &Error{Kind: KindAuth, Status: status, Msg: upstreamMessage(&resp, "authentication rejected")}
	case status == 404:
		return nil, &Error{Kind: KindNotFound, Status: status, Msg: upstreamMessage(&resp, "endpoint not found")}
	case status >= 500:
		return nil, &Error{Kind: KindTransient, Status: status, Msg: upstreamMessage(&resp, "upstream unavailable")}
	default:
		return nil, &Error{Kind: KindUpstream, Status: status, Msg: upstreamMessage(&resp, string(httpResp.Body()))}
	}
}

func upstreamMessage(resp *pageResponse, fallback string) string {
	if resp != nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
