package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// Search returns the requests visible from opts.State, filtered and ranked.
//
// VISIBILITY:
// A request is eligible when its author's stored state equals opts.State,
// compared case-insensitively. The join against users is the "resolve the
// same-state user ids, then filter by author" step in one query.
//
// FILTERS:
//   - Query: title OR description OR author username contains the text
//   - Tags: one EXISTS per tag, so every tag must be present
//   - Status: closed only, open only, or both with IncludeClosed
//
// RANKING:
// Fewest responses first, so under-served requests surface ahead of busy
// ones; newest first among equals.
func (db *DB) Search(ctx context.Context, opts repository.SearchOptions) ([]model.RequestSummary, error) {
	limit := opts.Limit
	if limit <= 0 || limit > repository.MaxSearchResults {
		limit = repository.MaxSearchResults
	}

	var (
		where = []string{"lower(u.state) = lower(?)"}
		args  = []any{opts.State}
	)

	switch {
	case opts.Status == model.StatusClosed:
		where = append(where, "r.status = 'closed'")
	case opts.IncludeClosed:
		// both statuses
	default:
		where = append(where, "r.status = 'open'")
	}

	if q := strings.TrimSpace(opts.Query); q != "" {
		pattern := "%" + escapeLike(fold(q)) + "%"
		where = append(where, `(r.title_folded LIKE ? ESCAPE '\'
			OR r.description_folded LIKE ? ESCAPE '\'
			OR u.username_folded LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	for _, tag := range opts.Tags {
		where = append(where, `EXISTS (SELECT 1 FROM request_tags t
			WHERE t.request_id = r.id AND t.tag_folded = ?)`)
		args = append(args, fold(tag))
	}

	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id, r.title, r.description, r.author_id, r.city, r.state, r.status,
		        r.created_at, r.edited_at,
		        u.username, u.display_name, u.avatar,
		        (SELECT COUNT(*) FROM responses rs WHERE rs.request_id = r.id) AS response_count
		 FROM requests r
		 JOIN users u ON u.id = r.author_id
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY response_count ASC, r.created_at DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching requests: %w", err)
	}
	defer rows.Close()

	results := make([]model.RequestSummary, 0)
	for rows.Next() {
		var (
			s         model.RequestSummary
			author    model.UserSummary
			status    string
			createdAt int64
			editedAt  sql.NullInt64
		)
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.AuthorID,
			&s.Location.City, &s.Location.State, &status,
			&createdAt, &editedAt,
			&author.Username, &author.DisplayName, &author.Avatar,
			&s.ResponseCount,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning search row: %w", err)
		}
		author.ID = s.AuthorID
		if author.DisplayName == "" {
			author.DisplayName = author.Username
		}
		s.Author = &author
		s.Status = model.Status(status)
		s.CreatedAt = fromUnix(createdAt)
		s.EditedAt = fromNullUnix(editedAt)
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating search results: %w", err)
	}

	if err := db.attachTags(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// attachTags loads the tags of every result with one query.
func (db *DB) attachTags(ctx context.Context, results []model.RequestSummary) error {
	if len(results) == 0 {
		return nil
	}

	index := make(map[string]int, len(results))
	args := make([]any, len(results))
	for i := range results {
		results[i].Tags = []string{}
		index[results[i].ID] = i
		args[i] = results[i].ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT request_id, tag FROM request_tags
		 WHERE request_id IN (`+placeholders(len(args))+`)
		 ORDER BY request_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading result tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("sqlite: scanning result tag: %w", err)
		}
		i := index[id]
		results[i].Tags = append(results[i].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating result tags: %w", err)
	}
	return nil
}

// SuggestTags returns distinct tags starting with prefix, across every
// request regardless of state. Distinctness ignores case; the casing
// returned is that of the earliest stored occurrence.
func (db *DB) SuggestTags(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 || limit > repository.MaxSearchResults {
		limit = repository.MaxSearchResults
	}

	pattern := escapeLike(fold(strings.TrimSpace(prefix))) + "%"
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tag FROM (
			SELECT t.tag, t.tag_folded,
			       ROW_NUMBER() OVER (PARTITION BY t.tag_folded ORDER BY r.created_at, t.position) AS rn
			FROM request_tags t
			JOIN requests r ON r.id = t.request_id
			WHERE t.tag_folded LIKE ? ESCAPE '\'
		 )
		 WHERE rn = 1
		 ORDER BY tag_folded
		 LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: suggesting tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}
