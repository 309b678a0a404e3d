// Package immoscout is a thin client for the ImmoScout24 mobile API: it
// fetches search result pages and exposé details and returns the decoded
// JSON bodies as they are. Retries, throttling and interpretation of the
// payloads are left to the caller.
package immoscout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/fibertransport"
	"immoscoutclient/pkg/restytransport"
	"immoscoutclient/pkg/transport"

	"github.com/google/uuid"
)

const Version = "0.1.0"

// Client is safe for concurrent use. Build it once and share it.
type Client struct {
	doer      transport.Doer
	owned     bool
	log       *slog.Logger
	closeOnce sync.Once
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTransport sends requests through d instead of a transport built from
// the config. The client does not close d.
func WithTransport(d transport.Doer) Option {
	return func(c *Client) { c.doer = d }
}

// searchRequest is the fixed body of every search_list call:
// {"supportedResultListType":[],"userData":{}}.
type searchRequest struct {
	SupportedResultListType []string `json:"supportedResultListType"`
	UserData                struct{} `json:"userData"`
}

func newSearchRequest() searchRequest {
	return searchRequest{SupportedResultListType: []string{}}
}

func New(cfg config.Config, opts ...Option) (*Client, error) {
	c := &Client{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer != nil {
		return c, nil
	}

	cfg = withDefaults(cfg)
	d, err := newDoer(cfg)
	if err != nil {
		return nil, fmt.Errorf("immoscout: build %s transport: %w", cfg.Backend, err)
	}
	c.doer, c.owned = d, true
	return c, nil
}

func withDefaults(cfg config.Config) config.Config {
	def := config.DefaultConfig()
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Impersonate == "" {
		cfg.Impersonate = def.Impersonate
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return cfg
}

func newDoer(cfg config.Config) (transport.Doer, error) {
	switch cfg.Backend {
	case config.BackendResty:
		return restytransport.New(cfg)
	case config.BackendFiber:
		return fibertransport.New(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// SearchList fetches one page (1-indexed) of the search behind mobileURL,
// as produced by ConvertWebToMobile.
func (c *Client) SearchList(ctx context.Context, mobileURL string, page int) (any, error) {
	pageURL, err := PageURL(mobileURL, page)
	if err != nil {
		return nil, err
	}

	doc, err := c.do(ctx, http.MethodPost, pageURL, newSearchRequest())
	if err != nil {
		return nil, newHTTPError(err, "failed to fetch search results page %d", page)
	}
	return doc, nil
}

// PropertyDetails fetches the exposé of one listing.
func (c *Client) PropertyDetails(ctx context.Context, listingID int64) (any, error) {
	url, err := ExposeDetailsURL(listingID)
	if err != nil {
		return nil, err
	}

	doc, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newHTTPError(err, "failed to fetch property details for listing %d", listingID)
	}
	return doc, nil
}

// Close releases the transport built by New. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.owned {
			c.doer.Close()
		}
	})
}

func (c *Client) do(ctx context.Context, method, url string, body any) (any, error) {
	log := c.log.With("request_id", uuid.NewString(), "method", method, "url", url)
	start := time.Now()
	log.Debug("sending request")

	var (
		resp transport.Response
		err  error
	)
	if method == http.MethodPost {
		resp, err = c.doer.Post(ctx, url, body)
	} else {
		resp, err = c.doer.Get(ctx, url)
	}
	if err != nil {
		log.Warn("request failed", "status", statusCode(err), "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	doc, err := decodeJSON(resp.Body())
	if err != nil {
		log.Warn("response is not JSON", "status", resp.StatusCode(), "bytes", len(resp.Body()), "error", err)
		return nil, err
	}
	log.Debug("request completed", "status", resp.StatusCode(), "bytes", len(resp.Body()), "elapsed", time.Since(start))
	return doc, nil
}

// decodeJSON accepts any single JSON value. Numbers stay json.Number so
// listing ids keep their precision.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode response body: trailing data after JSON value")
	}
	return doc, nil
}
