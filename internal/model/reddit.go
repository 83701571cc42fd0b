package model

// RedditStory is a cleaned-up self post
type RedditStory struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Author    string   `json:"author"`
	Subreddit string   `json:"subreddit"`
	Upvotes   int      `json:"upvotes"`
	URL       string   `json:"url"`
	Created   *float64 `json:"created"`
	NSFW      bool     `json:"nsfw"`
}

type RedditStoriesRequest struct {
	Subreddit string `query:"subreddit" validate:"omitempty,max=64"`
	Sort      string `query:"sort"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

type RedditStoriesResponse struct {
	Subreddit string        `json:"subreddit"`
	Sort      string        `json:"sort"`
	Count     int           `json:"count"`
	Stories   []RedditStory `json:"stories"`
}
