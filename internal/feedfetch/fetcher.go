// Package feedfetch pulls every active RSS/Atom source and attaches new posts
// to the issue being processed. Individual feed failures bump that feed's
// error counter and never abort the stage; the stage fails only when every
// configured feed failed.
package feedfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxPosts       = 200
	maxFeedBody           = 10 << 20
	userAgent             = "Pressroom-Go/0.1.0"
)

var titleCaser = cases.Title(language.English)

// Fetcher implements the feed ingestion stage.
type Fetcher struct {
	store    *issue.Store
	client   *http.Client
	logger   *slog.Logger
	maxPosts int
}

// Options tunes fetch behavior.
type Options struct {
	RequestTimeout time.Duration
	MaxPostsPerRun int
	HTTPClient     *http.Client
}

// New constructs the feed fetch stage.
func New(store *issue.Store, logger *slog.Logger, opts Options) *Fetcher {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxPosts := opts.MaxPostsPerRun
	if maxPosts <= 0 {
		maxPosts = defaultMaxPosts
	}
	return &Fetcher{
		store:    store,
		client:   client,
		logger:   logging.NewComponentLogger(logger, "feedfetch"),
		maxPosts: maxPosts,
	}
}

// Execute pulls every active feed and inserts new posts for the issue,
// deduplicating on link. The per-run post cap bounds runaway feeds.
func (f *Fetcher) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	logger := logging.WithContext(ctx, f.logger)
	feeds, err := f.store.ActiveFeeds(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "fetch_feeds", "list feeds",
			"load active feeds", err)
	}

	counters := pipeline.Counters{
		"feeds_fetched":   0,
		"feeds_failed":    0,
		"posts_inserted":  0,
		"posts_duplicate": 0,
	}
	if len(feeds) == 0 {
		logger.Warn("no active feeds configured")
		return counters, nil
	}

	inserted := 0
	for _, feed := range feeds {
		entries, err := f.fetchOne(ctx, feed.URL)
		if err != nil {
			counters["feeds_failed"]++
			logger.Warn("feed fetch failed",
				logging.String("feed", feed.Name),
				logging.String("url", feed.URL),
				logging.Error(err))
			if ierr := f.store.IncrementFeedError(ctx, feed.ID); ierr != nil {
				logger.Error("increment feed error counter", logging.Error(ierr))
			}
			continue
		}
		counters["feeds_fetched"]++
		if err := f.store.ResetFeedError(ctx, feed.ID); err != nil {
			logger.Error("reset feed error counter", logging.Error(err))
		}

		for _, item := range entries {
			if inserted >= f.maxPosts {
				break
			}
			if item.Link == "" || item.Title == "" {
				continue
			}
			post := &issue.Post{
				IssueID:     record.ID,
				FeedID:      feed.ID,
				Title:       normalizeTitle(item.Title),
				Link:        item.Link,
				Summary:     item.Summary,
				PublishedAt: item.PublishedAt,
			}
			added, err := f.store.InsertPost(ctx, post)
			if err != nil {
				return counters, services.Wrap(services.ErrExternalTool, "fetch_feeds", "insert post",
					"store fetched post", err)
			}
			if added {
				counters["posts_inserted"]++
				inserted++
			} else {
				counters["posts_duplicate"]++
			}
		}
	}

	if counters["feeds_fetched"] == 0 {
		return counters, services.Wrap(services.ErrExternalTool, "fetch_feeds", "fetch feeds",
			fmt.Sprintf("all %d active feeds failed", len(feeds)), nil)
	}

	logger.Info("feeds ingested",
		logging.Int("feeds_fetched", counters["feeds_fetched"]),
		logging.Int("feeds_failed", counters["feeds_failed"]),
		logging.Int("posts_inserted", counters["posts_inserted"]))
	return counters, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return parseFeed(body)
}

// normalizeTitle title-cases shouty all-caps headlines and collapses
// whitespace. Mixed-case titles pass through untouched.
func normalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title != "" && title == strings.ToUpper(title) && title != strings.ToLower(title) {
		return titleCaser.String(strings.ToLower(title))
	}
	return title
}

// HealthCheck verifies at least one active feed is configured.
func (f *Fetcher) HealthCheck(ctx context.Context) pipeline.Health {
	feeds, err := f.store.ActiveFeeds(ctx)
	if err != nil {
		return pipeline.Unhealthy("fetch_feeds", err.Error())
	}
	if len(feeds) == 0 {
		return pipeline.Unhealthy("fetch_feeds", "no active feeds configured")
	}
	return pipeline.Healthy("fetch_feeds")
}
