// Package news fetches topic-related headlines through the configured
// proxy and caches them so repeated topic lookups stay cheap.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/internal/config"
)

// Headline is one news item suggested as practice material.
type Headline struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

type cacheEntry struct {
	headlines []Headline
	fetchedAt time.Time
}

// Client fetches headlines with a per-topic in-memory cache. A fetch
// failure with a warm cache serves the stale entry instead of erroring.
type Client struct {
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	log        *logrus.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient builds a Client from config.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ttl := time.Duration(cfg.NewsCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.NewsURL, "/"),
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// Topics fetches headlines for a topic, hitting the network only when the
// cached entry is absent or older than the TTL.
func (c *Client) Topics(ctx context.Context, topic string) ([]Headline, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("news feed is not configured")
	}
	key := strings.ToLower(strings.TrimSpace(topic))

	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return cloneHeadlines(entry.headlines), nil
	}

	headlines, err := c.fetch(ctx, key)
	if err != nil {
		if ok {
			c.log.WithError(err).WithField("topic", key).Warn("news fetch failed; serving stale cache")
			return cloneHeadlines(entry.headlines), nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{headlines: headlines, fetchedAt: c.now()}
	c.mu.Unlock()
	return cloneHeadlines(headlines), nil
}

type feedResponse struct {
	Headlines []Headline `json:"headlines"`
}

func (c *Client) fetch(ctx context.Context, topic string) ([]Headline, error) {
	endpoint := c.baseURL + "/v1/news"
	if topic != "" {
		endpoint += "?topic=" + url.QueryEscape(topic)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("news feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("news fetch: decode: %w", err)
	}
	return feed.Headlines, nil
}

func cloneHeadlines(in []Headline) []Headline {
	out := make([]Headline, len(in))
	copy(out, in)
	return out
}
