package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storyscroll/api/internal/client"
	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/model"
)

const (
	defaultSubreddit = "tifu"
	defaultSort      = "hot"
	defaultLimit     = 20
	minRedditBody    = 100
)

var ErrInvalidSubreddit = errors.New("invalid subreddit name")

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// RedditLister fetches raw subreddit listings. client.RedditClient implements it.
type RedditLister interface {
	Listing(ctx context.Context, subreddit, sort string, limit int) ([]client.RedditPost, error)
}

// RedditService proxies subreddit listings and keeps only usable stories
type RedditService struct {
	lister   RedditLister
	redis    *redis.Client
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewRedditService creates the proxy. A nil redis client disables caching.
func NewRedditService(lister RedditLister, redisClient *redis.Client, cacheTTL time.Duration, log *logger.Logger) *RedditService {
	if log == nil {
		log = logger.Nop()
	}
	return &RedditService{
		lister:   lister,
		redis:    redisClient,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Stories returns the cleaned stories of a subreddit listing.
func (s *RedditService) Stories(ctx context.Context, req *model.RedditStoriesRequest) (*model.RedditStoriesResponse, error) {
	subreddit := strings.TrimSpace(req.Subreddit)
	if subreddit == "" {
		subreddit = defaultSubreddit
	}
	if !subredditPattern.MatchString(subreddit) {
		return nil, ErrInvalidSubreddit
	}
	sort := req.Sort
	if !client.ValidSort(sort) {
		sort = defaultSort
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultLimit
	}

	cacheKey := fmt.Sprintf("reddit:%s:%s:%d", strings.ToLower(subreddit), sort, limit)
	if cached := s.cached(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	posts, err := s.lister.Listing(ctx, subreddit, sort, limit)
	if err != nil {
		return nil, err
	}

	stories := make([]model.RedditStory, 0, len(posts))
	for _, p := range posts {
		if story, ok := parsePost(p); ok {
			stories = append(stories, story)
		}
	}

	resp := &model.RedditStoriesResponse{
		Subreddit: subreddit,
		Sort:      sort,
		Count:     len(stories),
		Stories:   stories,
	}
	s.store(ctx, cacheKey, resp)
	return resp, nil
}

// parsePost drops removed, deleted, link-only and very short posts.
func parsePost(p client.RedditPost) (model.RedditStory, bool) {
	body := strings.TrimSpace(p.Selftext)
	if body == "" || body == "[removed]" || body == "[deleted]" {
		return model.RedditStory{}, false
	}
	if len(body) < minRedditBody {
		return model.RedditStory{}, false
	}

	author := p.Author
	if author == "" {
		author = "unknown"
	}
	return model.RedditStory{
		ID:        p.ID,
		Title:     p.Title,
		Body:      body,
		Author:    author,
		Subreddit: p.Subreddit,
		Upvotes:   p.Ups,
		URL:       "https://reddit.com" + p.Permalink,
		Created:   p.CreatedUTC,
		NSFW:      p.Over18,
	}, true
}

func (s *RedditService) cached(ctx context.Context, key string) *model.RedditStoriesResponse {
	if s.redis == nil || s.cacheTTL <= 0 {
		return nil
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Debug("reddit cache read failed", "key", key, "error", err)
		}
		return nil
	}
	var resp model.RedditStoriesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil
	}
	return &resp
}

func (s *RedditService) store(ctx context.Context, key string, resp *model.RedditStoriesResponse) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.log.Debug("reddit cache write failed", "key", key, "error", err)
	}
}
