package client

import (
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

	"github.com/storyscroll/api/internal/config"
)

var (
	ErrSubredditNotFound   = errors.New("subreddit not found")
	ErrSubredditForbidden  = errors.New("subreddit is private or restricted")
	ErrRedditTimeout       = errors.New("reddit request timed out")
	ErrRedditUnavailable   = errors.New("reddit unavailable")
	ErrRedditInvalidResult = errors.New("failed to parse reddit response")
)

// RedditPost is the subset of a listing child the proxy reads
type RedditPost struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Selftext   string   `json:"selftext"`
	Author     string   `json:"author"`
	Subreddit  string   `json:"subreddit"`
	Ups        int      `json:"ups"`
	Permalink  string   `json:"permalink"`
	CreatedUTC *float64 `json:"created_utc"`
	Over18     bool     `json:"over_18"`
}

type redditListing struct {
	Data *struct {
		Children []struct {
			Data RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditClient reads Reddit's public JSON listings
type RedditClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewRedditClient creates a new Reddit listing client
func NewRedditClient(cfg *config.RedditConfig) *RedditClient {
	timeout := config.Seconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RedditClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
	}
}

// sortPaths maps a sort mode to its listing path and extra query.
var sortPaths = map[string]string{
	"hot": "/hot.json",
	"top": "/top.json?t=week",
	"new": "/new.json",
}

// ValidSort reports whether sort is a supported listing mode.
func ValidSort(sort string) bool {
	_, ok := sortPaths[sort]
	return ok
}

// Listing fetches up to limit posts of subreddit in the given sort order.
func (c *RedditClient) Listing(ctx context.Context, subreddit, sort string, limit int) ([]RedditPost, error) {
	path, ok := sortPaths[sort]
	if !ok {
		path = sortPaths["hot"]
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	endpoint := fmt.Sprintf("%s/r/%s%s%slimit=%s&raw_json=1",
		c.baseURL, url.PathEscape(subreddit), path, sep, strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrRedditTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrRedditUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSubredditNotFound
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrSubredditForbidden
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrRedditUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrRedditTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrRedditUnavailable, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil || listing.Data == nil {
		return nil, ErrRedditInvalidResult
	}

	posts := make([]RedditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
