package issue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddFeed registers a feed source. The URL must be unique.
func (s *Store) AddFeed(ctx context.Context, name, url string) (*Feed, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO feeds (name, url, active, error_count, created_at) VALUES (?, ?, 1, 0, ?)`,
		name,
		url,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.FeedByID(ctx, id)
}

// FeedByID fetches a feed by identifier. Returns nil when absent.
func (s *Store) FeedByID(ctx context.Context, id int64) (*Feed, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, url, active, error_count, created_at FROM feeds WHERE id = ?`,
		id,
	)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

// ActiveFeeds returns feeds eligible for fetching, oldest first.
func (s *Store) ActiveFeeds(ctx context.Context) ([]*Feed, error) {
	return s.listFeeds(ctx, true)
}

// ListFeeds returns all configured feeds.
func (s *Store) ListFeeds(ctx context.Context) ([]*Feed, error) {
	return s.listFeeds(ctx, false)
}

func (s *Store) listFeeds(ctx context.Context, activeOnly bool) ([]*Feed, error) {
	query := `SELECT id, name, url, active, error_count, created_at FROM feeds`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// IncrementFeedError bumps a feed's consecutive error counter.
func (s *Store) IncrementFeedError(ctx context.Context, feedID int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE feeds SET error_count = error_count + 1 WHERE id = ?`, feedID)
	if err != nil {
		return fmt.Errorf("increment feed error: %w", err)
	}
	return nil
}

// ResetFeedError clears a feed's error counter after a successful pull.
func (s *Store) ResetFeedError(ctx context.Context, feedID int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE feeds SET error_count = 0 WHERE id = ?`, feedID)
	if err != nil {
		return fmt.Errorf("reset feed error: %w", err)
	}
	return nil
}

// InsertPost stores a fetched post, deduplicating on (issue, link). Reports
// whether a row was inserted.
func (s *Store) InsertPost(ctx context.Context, post *Post) (bool, error) {
	if post == nil {
		return false, errors.New("post is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO posts (
            issue_id, feed_id, title, link, summary, full_text,
            published_at, score, section, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.IssueID,
		post.FeedID,
		post.Title,
		post.Link,
		nullableString(post.Summary),
		nullableString(post.FullText),
		nullableTime(post.PublishedAt),
		post.Score,
		nullableString(post.Section),
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		if post.ID, err = res.LastInsertId(); err != nil {
			return false, fmt.Errorf("last insert id: %w", err)
		}
	}
	return affected > 0, nil
}

const postColumns = "id, issue_id, feed_id, title, link, summary, full_text, published_at, score, section, created_at"

// PostsForIssue returns all posts attached to an issue, oldest first.
func (s *Store) PostsForIssue(ctx context.Context, issueID string) ([]*Post, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+postColumns+` FROM posts WHERE issue_id = ? ORDER BY id`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// PostsNeedingExtraction returns posts published after the cutoff that still
// lack full article text.
func (s *Store) PostsNeedingExtraction(ctx context.Context, issueID string, cutoff time.Time) ([]*Post, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE issue_id = ? AND (full_text IS NULL OR full_text = '')
           AND published_at IS NOT NULL AND published_at >= ?
         ORDER BY id`,
		issueID,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query posts needing extraction: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// SetPostFullText stores extracted article text on a post.
func (s *Store) SetPostFullText(ctx context.Context, postID int64, text string) error {
	_, err := s.execWithRetry(ctx, `UPDATE posts SET full_text = ? WHERE id = ?`, text, postID)
	if err != nil {
		return fmt.Errorf("set post full text: %w", err)
	}
	return nil
}

// SetPostScore records the relevance score and section assignment for a post.
func (s *Store) SetPostScore(ctx context.Context, postID int64, score float64, section string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE posts SET score = ?, section = ? WHERE id = ?`,
		score,
		nullableString(section),
		postID,
	)
	if err != nil {
		return fmt.Errorf("set post score: %w", err)
	}
	return nil
}

// ScoredPosts returns an issue's posts for one section, best score first.
func (s *Store) ScoredPosts(ctx context.Context, issueID, section string, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE issue_id = ? AND section = ? AND score IS NOT NULL
         ORDER BY score DESC, id
         LIMIT ?`,
		issueID,
		section,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query scored posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// InsertArticle stores generated newsletter copy.
func (s *Store) InsertArticle(ctx context.Context, article *Article) error {
	if article == nil {
		return errors.New("article is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO articles (issue_id, post_id, section, headline, body, fact_check, position, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		article.IssueID,
		article.PostID,
		article.Section,
		article.Headline,
		article.Body,
		nullableString(article.FactCheck),
		article.Position,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	if article.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// ArticlesForIssue returns generated articles ordered by section then position.
func (s *Store) ArticlesForIssue(ctx context.Context, issueID string) ([]*Article, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, issue_id, post_id, section, headline, body, fact_check, position, created_at
         FROM articles WHERE issue_id = ? ORDER BY section, position, id`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		var (
			article    Article
			factCheck  sql.NullString
			createdRaw sql.NullString
			postID     sql.NullInt64
		)
		if err := rows.Scan(
			&article.ID,
			&article.IssueID,
			&postID,
			&article.Section,
			&article.Headline,
			&article.Body,
			&factCheck,
			&article.Position,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		article.PostID = postID.Int64
		article.FactCheck = factCheck.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			article.CreatedAt = created
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

// ArchiveIssueContent snapshots the issue's posts into post_archive with their
// score-derived position, then clears the working posts and articles tables.
// The whole operation is one transaction so a crash never loses the snapshot.
func (s *Store) ArchiveIssueContent(ctx context.Context, issueID string) (int64, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO post_archive (issue_id, post_id, title, link, section, score, position, archived_at)
         SELECT issue_id, id, title, link, section, score,
                ROW_NUMBER() OVER (ORDER BY score DESC, id),
                ?
         FROM posts WHERE issue_id = ?`,
		now,
		issueID,
	)
	if err != nil {
		return 0, fmt.Errorf("archive posts: %w", err)
	}
	archived, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE issue_id = ?`, issueID); err != nil {
		return 0, fmt.Errorf("clear articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE issue_id = ?`, issueID); err != nil {
		return 0, fmt.Errorf("clear posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return archived, nil
}

func scanFeed(scanner interface{ Scan(dest ...any) error }) (*Feed, error) {
	var (
		feed       Feed
		active     int
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&feed.ID, &feed.Name, &feed.URL, &active, &feed.ErrorCount, &createdRaw); err != nil {
		return nil, err
	}
	feed.Active = active != 0
	if created, err := parseTimeString(createdRaw.String); err == nil {
		feed.CreatedAt = created
	}
	return &feed, nil
}

func collectPosts(rows *sql.Rows) ([]*Post, error) {
	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (*Post, error) {
	var (
		post         Post
		feedID       sql.NullInt64
		summary      sql.NullString
		fullText     sql.NullString
		publishedRaw sql.NullString
		score        sql.NullFloat64
		section      sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(
		&post.ID,
		&post.IssueID,
		&feedID,
		&post.Title,
		&post.Link,
		&summary,
		&fullText,
		&publishedRaw,
		&score,
		&section,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	post.FeedID = feedID.Int64
	post.Summary = summary.String
	post.FullText = fullText.String
	post.Section = section.String
	if score.Valid {
		value := score.Float64
		post.Score = &value
	}
	if publishedRaw.Valid {
		if published, err := parseTimeString(publishedRaw.String); err == nil {
			post.PublishedAt = &published
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		post.CreatedAt = created
	}
	return &post, nil
}
