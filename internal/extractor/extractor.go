// Package extractor fetches full article bodies for recently published posts.
// A post whose page cannot be fetched degrades to its feed summary so the
// scoring stage always has text to work with.
package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultExtractWindow  = 48 * time.Hour
	maxPageBody           = 5 << 20
	maxExtractedText      = 20000
	userAgent             = "Pressroom-Go/0.1.0"
)

// Extractor implements the article extraction stage.
type Extractor struct {
	store  *issue.Store
	client *http.Client
	logger *slog.Logger
	window time.Duration
}

// Options tunes extraction behavior.
type Options struct {
	RequestTimeout time.Duration
	ExtractWindow  time.Duration
	HTTPClient     *http.Client
}

// New constructs the extraction stage.
func New(store *issue.Store, logger *slog.Logger, opts Options) *Extractor {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	window := opts.ExtractWindow
	if window <= 0 {
		window = defaultExtractWindow
	}
	return &Extractor{
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "extractor"),
		window: window,
	}
}

// Execute fills full_text for posts published inside the extraction window
// that do not have it yet. Fetch failures degrade to the feed summary rather
// than failing the stage.
func (e *Extractor) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	logger := logging.WithContext(ctx, e.logger)
	cutoff := time.Now().UTC().Add(-e.window)
	posts, err := e.store.PostsNeedingExtraction(ctx, record.ID, cutoff)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract_articles", "list posts",
			"load posts needing extraction", err)
	}

	counters := pipeline.Counters{
		"posts_extracted": 0,
		"posts_degraded":  0,
	}
	for _, post := range posts {
		text, err := e.extractOne(ctx, post.Link)
		if err != nil {
			logger.Warn("extraction degraded to summary",
				logging.Int64("post_id", post.ID),
				logging.String("url", post.Link),
				logging.Error(err))
			text = post.Summary
			counters["posts_degraded"]++
		} else {
			counters["posts_extracted"]++
		}
		if err := e.store.SetPostFullText(ctx, post.ID, text); err != nil {
			return counters, services.Wrap(services.ErrExternalTool, "extract_articles", "store text",
				"persist extracted text", err)
		}
	}

	logger.Info("articles extracted",
		logging.Int("posts_extracted", counters["posts_extracted"]),
		logging.Int("posts_degraded", counters["posts_degraded"]))
	return counters, nil
}

func (e *Extractor) extractOne(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}
	text := stripHTML(string(body))
	if text == "" {
		return "", fmt.Errorf("page produced no text")
	}
	return text, nil
}

// stripHTML reduces a page to whitespace-normalized visible text. Script and
// style blocks are removed wholesale before tags are stripped.
func stripHTML(page string) string {
	page = removeBlocks(page, "script")
	page = removeBlocks(page, "style")

	var b strings.Builder
	b.Grow(len(page) / 2)
	inTag := false
	for _, r := range page {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	text := decodeEntities(b.String())
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxExtractedText {
		cut := maxExtractedText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func removeBlocks(page, tag string) string {
	lower := strings.ToLower(page)
	open := "<" + tag
	close := "</" + tag + ">"
	var b strings.Builder
	for {
		start := strings.Index(lower, open)
		if start < 0 {
			b.WriteString(page)
			return b.String()
		}
		end := strings.Index(lower[start:], close)
		if end < 0 {
			b.WriteString(page[:start])
			return b.String()
		}
		cut := start + end + len(close)
		b.WriteString(page[:start])
		page = page[cut:]
		lower = lower[cut:]
	}
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

func decodeEntities(text string) string {
	return entityReplacer.Replace(text)
}

// HealthCheck verifies the store is reachable.
func (e *Extractor) HealthCheck(ctx context.Context) pipeline.Health {
	if _, err := e.store.Health(ctx); err != nil {
		return pipeline.Unhealthy("extract_articles", err.Error())
	}
	return pipeline.Healthy("extract_articles")
}
