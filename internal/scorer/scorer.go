// Package scorer asks the LLM to rate every post's relevance for the
// newsletter and sort it into a section. Posts are scored in one JSON batch
// prompt; posts the model skips stay unscored and the stage still succeeds as
// long as something was scored.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
	"pressroom/internal/services/llm"
)

const systemPrompt = `You curate a daily technology newsletter with two sections: "news" and "research".
You receive a JSON array of posts, each with an id, title, and text.
Score each post's relevance to the newsletter's readers from 0.0 (irrelevant) to 1.0 (must run)
and assign its section. Respond with JSON only, in the form:
{"scores": [{"id": 1, "score": 0.8, "section": "news"}, ...]}
Include every post exactly once. Use only the sections "news" and "research".`

// maxPostText bounds the per-post text sent in the batch prompt.
const maxPostText = 2000

// Scorer implements the relevance scoring stage.
type Scorer struct {
	store  *issue.Store
	client *llm.Client
	logger *slog.Logger
}

// New constructs the scoring stage.
func New(store *issue.Store, client *llm.Client, logger *slog.Logger) *Scorer {
	return &Scorer{
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "scorer"),
	}
}

type promptPost struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type scorePayload struct {
	Scores []struct {
		ID      int64   `json:"id"`
		Score   float64 `json:"score"`
		Section string  `json:"section"`
	} `json:"scores"`
}

// Execute scores the issue's posts in a single batch completion. An issue
// without posts succeeds with zero counters; a batch where nothing could be
// scored fails the stage.
func (s *Scorer) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	logger := logging.WithContext(ctx, s.logger)
	posts, err := s.store.PostsForIssue(ctx, record.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "score", "list posts",
			"load posts for scoring", err)
	}

	counters := pipeline.Counters{
		"posts_scored":   0,
		"posts_unscored": 0,
	}
	if len(posts) == 0 {
		logger.Warn("no posts to score")
		return counters, nil
	}

	known := make(map[int64]struct{}, len(posts))
	batch := make([]promptPost, 0, len(posts))
	for _, post := range posts {
		known[post.ID] = struct{}{}
		batch = append(batch, promptPost{
			ID:    post.ID,
			Title: post.Title,
			Text:  truncate(firstNonEmpty(post.FullText, post.Summary), maxPostText),
		})
	}
	encoded, err := json.Marshal(batch)
	if err != nil {
		return counters, fmt.Errorf("encode scoring batch: %w", err)
	}

	content, err := s.client.CompleteJSON(ctx, systemPrompt, string(encoded))
	if err != nil {
		return counters, services.Wrap(services.ErrExternalTool, "score", "complete",
			"LLM scoring request", err)
	}
	var payload scorePayload
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		return counters, services.Wrap(services.ErrExternalTool, "score", "decode",
			"parse LLM scoring payload", err)
	}

	scored := make(map[int64]struct{}, len(payload.Scores))
	for _, result := range payload.Scores {
		if _, ok := known[result.ID]; !ok {
			continue
		}
		if _, dup := scored[result.ID]; dup {
			continue
		}
		section := normalizeSection(result.Section)
		if err := s.store.SetPostScore(ctx, result.ID, clampScore(result.Score), section); err != nil {
			return counters, services.Wrap(services.ErrExternalTool, "score", "store score",
				"persist post score", err)
		}
		scored[result.ID] = struct{}{}
		counters["posts_scored"]++
	}
	counters["posts_unscored"] = len(posts) - len(scored)

	if counters["posts_scored"] == 0 {
		return counters, services.Wrap(services.ErrExternalTool, "score", "complete",
			fmt.Sprintf("model scored none of %d posts", len(posts)), nil)
	}

	logger.Info("posts scored",
		logging.Int("posts_scored", counters["posts_scored"]),
		logging.Int("posts_unscored", counters["posts_unscored"]))
	return counters, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func normalizeSection(section string) string {
	section = strings.ToLower(strings.TrimSpace(section))
	for _, known := range issue.Sections() {
		if section == known {
			return section
		}
	}
	return issue.SectionNews
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
	return text[:limit]
}

// HealthCheck pings the LLM endpoint.
func (s *Scorer) HealthCheck(ctx context.Context) pipeline.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return pipeline.Unhealthy("score", err.Error())
	}
	return pipeline.Healthy("score")
}
