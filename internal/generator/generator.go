// Package generator turns the top-scored posts of each newsletter section into
// publishable copy: a headline, a body, and a fact-check note per post. The
// two sections are generated independently; one section failing leaves the
// other's articles intact, and the stage fails only when both sections fail.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
	"pressroom/internal/services/llm"
)

const systemPrompt = `You write copy for a daily technology newsletter.
You receive one source post with a title and text. Write the newsletter entry for it.
Respond with JSON only, in the form:
{"headline": "...", "body": "...", "fact_check": "..."}
The headline is under 90 characters. The body is 2-4 paragraphs grounded strictly
in the source text. The fact_check note lists any claim in the source that could
not be verified from the text itself, or "none".`

const (
	defaultPostsPerSection = 5
	maxSourceText          = 6000

	// Copywriting wants some variation, unlike the deterministic scoring pass.
	generationTemperature = 0.4
)

// Generator implements the article generation stage.
type Generator struct {
	store           *issue.Store
	client          *llm.Client
	logger          *slog.Logger
	postsPerSection int
}

// New constructs the generation stage.
func New(store *issue.Store, client *llm.Client, logger *slog.Logger, postsPerSection int) *Generator {
	if postsPerSection <= 0 {
		postsPerSection = defaultPostsPerSection
	}
	return &Generator{
		store:           store,
		client:          client,
		logger:          logging.NewComponentLogger(logger, "generator"),
		postsPerSection: postsPerSection,
	}
}

type articlePayload struct {
	Headline  string `json:"headline"`
	Body      string `json:"body"`
	FactCheck string `json:"fact_check"`
}

// Execute generates articles for each section independently. A section with no
// scored posts contributes nothing and is not a failure.
func (g *Generator) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	logger := logging.WithContext(ctx, g.logger)
	counters := pipeline.Counters{
		"articles_generated": 0,
		"sections_failed":    0,
	}

	var sectionErrs []error
	for _, section := range issue.Sections() {
		generated, err := g.generateSection(ctx, record.ID, section)
		counters["articles_generated"] += generated
		if err != nil {
			counters["sections_failed"]++
			sectionErrs = append(sectionErrs, err)
			logger.Warn("section generation failed",
				logging.String("section", section),
				logging.Error(err))
		}
	}

	if len(sectionErrs) == len(issue.Sections()) {
		return counters, services.Wrap(services.ErrExternalTool, "generate_articles", "generate",
			"every section failed", sectionErrs[0])
	}

	logger.Info("articles generated",
		logging.Int("articles_generated", counters["articles_generated"]),
		logging.Int("sections_failed", counters["sections_failed"]))
	return counters, nil
}

func (g *Generator) generateSection(ctx context.Context, issueID, section string) (int, error) {
	posts, err := g.store.ScoredPosts(ctx, issueID, section, g.postsPerSection)
	if err != nil {
		return 0, fmt.Errorf("load scored posts for %s: %w", section, err)
	}

	generated := 0
	for position, post := range posts {
		article, err := g.generateOne(ctx, post)
		if err != nil {
			return generated, fmt.Errorf("generate %s position %d: %w", section, position+1, err)
		}
		article.IssueID = issueID
		article.PostID = post.ID
		article.Section = section
		article.Position = position + 1
		if err := g.store.InsertArticle(ctx, article); err != nil {
			return generated, fmt.Errorf("store article: %w", err)
		}
		generated++
	}
	return generated, nil
}

func (g *Generator) generateOne(ctx context.Context, post *issue.Post) (*issue.Article, error) {
	source := map[string]string{
		"title": post.Title,
		"text":  truncate(firstNonEmpty(post.FullText, post.Summary), maxSourceText),
	}
	encoded, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("encode source post: %w", err)
	}

	content, err := g.client.CompleteText(ctx, systemPrompt, string(encoded), generationTemperature)
	if err != nil {
		return nil, err
	}
	var payload articlePayload
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		return nil, fmt.Errorf("parse article payload: %w", err)
	}
	if strings.TrimSpace(payload.Headline) == "" || strings.TrimSpace(payload.Body) == "" {
		return nil, fmt.Errorf("model returned empty headline or body")
	}
	return &issue.Article{
		Headline:  strings.TrimSpace(payload.Headline),
		Body:      strings.TrimSpace(payload.Body),
		FactCheck: strings.TrimSpace(payload.FactCheck),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// HealthCheck pings the LLM endpoint.
func (g *Generator) HealthCheck(ctx context.Context) pipeline.Health {
	if err := g.client.HealthCheck(ctx); err != nil {
		return pipeline.Unhealthy("generate_articles", err.Error())
	}
	return pipeline.Healthy("generate_articles")
}
