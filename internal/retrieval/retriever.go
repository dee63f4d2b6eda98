package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 100
)

// Source describes one kind of paginated request against a data platform.
type Source interface {
	// Name identifies the source kind; it is also the tool name.
	Name() string
	Endpoint() string
	// Params returns the query parameters for the page starting at position start.
	Params(start, size int) url.Values
	// CountItems returns how many records a raw page holds.
	CountItems(page json.RawMessage) (int, error)
	CacheKey() string
	Summary() string
	// Validate rejects a malformed request before anything is sent.
	Validate() error
}

// HTTPRetriever fetches every page of a Source with bearer authentication,
// reading and writing the page cache around the network calls.
type HTTPRetriever struct {
	conn     Connection
	baseURL  string
	client   *http.Client
	cache    *FileCache
	pageSize int
	maxPages int
	logger   *zap.Logger
}

type Option func(*HTTPRetriever)

func WithHTTPClient(client *http.Client) Option {
	return func(r *HTTPRetriever) { r.client = client }
}

// WithCache enables page persistence. Without it every call hits the network.
func WithCache(cache *FileCache) Option {
	return func(r *HTTPRetriever) { r.cache = cache }
}

func WithPageSize(size int) Option {
	return func(r *HTTPRetriever) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

// WithMaxPages bounds how many pages one retrieval may fetch.
func WithMaxPages(n int) Option {
	return func(r *HTTPRetriever) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *HTTPRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewHTTPRetriever(conn Connection, baseURL string, opts ...Option) *HTTPRetriever {
	r := &HTTPRetriever{
		conn:     conn,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPRetriever) Connection() Connection { return r.conn }
func (r *HTTPRetriever) PageSize() int          { return r.pageSize }

// Retrieve returns every raw page of src, unmerged, in fetch order. Cached
// pages are returned without touching the network.
func (r *HTTPRetriever) Retrieve(ctx context.Context, src Source) ([]json.RawMessage, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if !r.conn.IsAuthorized() {
		r.logger.Error("Entity is no longer connected",
			zap.String("entity_id", r.conn.EntityID()),
			zap.String("platform", r.conn.PlatformName()))
		return nil, &AuthError{EntityID: r.conn.EntityID()}
	}

	key := src.CacheKey()
	if r.cache != nil {
		pages, ok, err := r.cache.Load(key)
		if err != nil {
			return nil, err
		}
		if ok {
			r.logger.Info("📦 Retrieved pages from cache",
				zap.Int("pages", len(pages)),
				zap.String("cache_key", key))
			return pages, nil
		}
	}

	pages, err := r.fetchAll(ctx, src)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.logger.Info("Saving pages to cache",
			zap.Int("pages", len(pages)),
			zap.String("path", r.cache.Path(key)))
		if err := r.cache.Save(key, pages); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

// Headers returns the request headers, failing when no token is available.
func (r *HTTPRetriever) Headers() (http.Header, error) {
	token := r.conn.AccessToken()
	if token == "" {
		return nil, fmt.Errorf("%w for entity %s", ErrNoToken, r.conn.EntityID())
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	return h, nil
}

func (r *HTTPRetriever) fetchAll(ctx context.Context, src Source) ([]json.RawMessage, error) {
	var pages []json.RawMessage
	for start := 1; ; start += r.pageSize {
		if len(pages) == r.maxPages {
			return nil, fmt.Errorf("%s: stopped after %d pages", src.Name(), r.maxPages)
		}
		page, n, err := r.fetchPage(ctx, src, start)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
		if n < r.pageSize {
			return pages, nil
		}
	}
}

func (r *HTTPRetriever) fetchPage(ctx context.Context, src Source, start int) (json.RawMessage, int, error) {
	endpoint := r.baseURL + src.Endpoint()
	params := src.Params(start, r.pageSize)

	fields := []zap.Field{
		zap.String("entity_id", r.conn.EntityID()),
		zap.String("cache_key", src.CacheKey()),
		zap.String("url", endpoint),
		zap.String("params", params.Encode()),
		zap.Int("start_pos", start),
		zap.Int("page_size", r.pageSize),
	}

	headers, err := r.Headers()
	if err != nil {
		return nil, 0, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid url %q: %w", endpoint, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header = headers

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("❌ Request failed", append(fields, zap.Error(err))...)
		return nil, 0, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        u.String(),
			Body:       string(body),
		}
		r.logger.Error("❌ HTTP error", append(fields, zap.Int("status", resp.StatusCode), zap.String("body", httpErr.Body))...)
		return nil, 0, httpErr
	}

	if !json.Valid(body) {
		return nil, 0, &MalformedResponseError{URL: u.String(), Reason: "body is not JSON"}
	}
	page := json.RawMessage(body)

	n, err := src.CountItems(page)
	if err != nil {
		var malformed *MalformedResponseError
		if errors.As(err, &malformed) && malformed.URL == "" {
			malformed.URL = u.String()
		}
		r.logger.Error("❌ Unexpected response shape", append(fields, zap.Error(err))...)
		return nil, 0, err
	}

	r.logger.Info(fmt.Sprintf("%s call returned %d items", src.Summary(), n), fields...)
	return page, n, nil
}
