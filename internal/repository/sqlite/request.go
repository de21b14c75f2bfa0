package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

var _ repository.RequestRepository = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx used by helpers that must run
// either inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success and rolling back
// on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateRequest inserts req and its tags. ID is generated here; CreatedAt is
// kept when the caller already set it.
func (db *DB) CreateRequest(ctx context.Context, req *model.Request) error {
	req.ID = xid.New().String()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = model.StatusOpen
	}
	if req.Responses == nil {
		req.Responses = []model.Response{}
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO requests (id, title, title_folded, description, description_folded,
			                       author_id, city, state, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.ID,
			req.Title,
			fold(req.Title),
			req.Description,
			fold(req.Description),
			req.AuthorID,
			req.Location.City,
			req.Location.State,
			string(req.Status),
			toUnix(req.CreatedAt),
		)
		if err != nil {
			return err
		}
		return writeTags(ctx, tx, req.ID, req.Tags)
	})
	if err != nil {
		return fmt.Errorf("sqlite: creating request: %w", err)
	}
	return nil
}

// GetRequest loads a request with its tags and responses in thread order.
func (db *DB) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	req, err := getRequest(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}
	req.Tags, err = readTags(ctx, db.conn, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading tags of %s: %w", id, err)
	}
	req.Responses, err = readResponses(ctx, db.conn, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading responses of %s: %w", id, err)
	}
	return req, nil
}

func getRequest(ctx context.Context, q querier, id string) (*model.Request, error) {
	var (
		req                model.Request
		status             string
		createdAt          int64
		editedAt, resolved sql.NullInt64
		resolvedBy         sql.NullString
		solvedOutside      int
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, title, description, author_id, city, state, status, created_at,
		        edited_at, resolved_by, resolved_at, solved_outside_platform
		 FROM requests WHERE id = ?`,
		id,
	).Scan(
		&req.ID, &req.Title, &req.Description, &req.AuthorID,
		&req.Location.City, &req.Location.State, &status, &createdAt,
		&editedAt, &resolvedBy, &resolved, &solvedOutside,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("request", id)
		}
		return nil, fmt.Errorf("sqlite: getting request %s: %w", id, err)
	}

	req.Status = model.Status(status)
	req.CreatedAt = fromUnix(createdAt)
	req.EditedAt = fromNullUnix(editedAt)
	if resolved.Valid {
		req.Resolution = &model.Resolution{
			ResolvedBy:            resolvedBy.String,
			ResolvedAt:            fromUnix(resolved.Int64),
			SolvedOutsidePlatform: solvedOutside != 0,
		}
	}
	return &req, nil
}

func readTags(ctx context.Context, q querier, requestID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT tag FROM request_tags WHERE request_id = ? ORDER BY position`, requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// writeTags replaces the tag rows of a request.
func writeTags(ctx context.Context, tx *sql.Tx, requestID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM request_tags WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}
	for i, tag := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO request_tags (request_id, position, tag, tag_folded) VALUES (?, ?, ?, ?)`,
			requestID, i, tag, fold(tag),
		)
		if err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag, err)
		}
	}
	return nil
}

func readResponses(ctx context.Context, q querier, requestID string) ([]model.Response, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, request_id, user_id, message, created_at, edited_at
		 FROM responses WHERE request_id = ?
		 ORDER BY created_at, rowid`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		var (
			resp      model.Response
			createdAt int64
			editedAt  sql.NullInt64
		)
		if err := rows.Scan(&resp.ID, &resp.RequestID, &resp.UserID, &resp.Message, &createdAt, &editedAt); err != nil {
			return nil, err
		}
		resp.CreatedAt = fromUnix(createdAt)
		resp.EditedAt = fromNullUnix(editedAt)
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// UpdateRequest writes the editable fields (title, description, tags,
// edited_at). Author, status and resolution are never touched here.
func (db *DB) UpdateRequest(ctx context.Context, req *model.Request) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE requests SET title = ?, title_folded = ?, description = ?, description_folded = ?,
			        edited_at = ?
			 WHERE id = ?`,
			req.Title,
			fold(req.Title),
			req.Description,
			fold(req.Description),
			toNullUnix(req.EditedAt),
			req.ID,
		)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperror.NotFound("request", req.ID)
		}
		return writeTags(ctx, tx, req.ID, req.Tags)
	})
	if err != nil {
		return fmt.Errorf("sqlite: updating request %s: %w", req.ID, err)
	}
	return nil
}

// DeleteRequest removes the request and everything it owns. Children are
// deleted explicitly so the result does not depend on the foreign_keys
// pragma of the pooled connection.
func (db *DB) DeleteRequest(ctx context.Context, id string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE request_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM request_tags WHERE request_id = ?`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperror.NotFound("request", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: deleting request %s: %w", id, err)
	}
	return nil
}

// CancelRequest deletes an open request that nobody has answered. The
// conditions are part of the DELETE, so a response that lands first makes
// the cancel fail instead of being deleted with the request.
func (db *DB) CancelRequest(ctx context.Context, id string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM requests
			 WHERE id = ? AND status = 'open'
			   AND NOT EXISTS (SELECT 1 FROM responses WHERE request_id = ?)`,
			id, id,
		)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
			switch {
			case err == sql.ErrNoRows:
				return apperror.NotFound("request", id)
			case err != nil:
				return err
			case status != string(model.StatusOpen):
				return apperror.Conflict("request is already closed")
			default:
				return apperror.Conflict("request has responses; select a resolver or mark solved outside platform")
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM request_tags WHERE request_id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: cancelling request %s: %w", id, err)
	}
	return nil
}

// AddResponse appends resp to its request.
//
// The insert is conditional on the parent being open, so a response racing
// a Close either lands before the close or is rejected; it can never be
// attached to a closed request.
func (db *DB) AddResponse(ctx context.Context, resp *model.Response) error {
	resp.ID = xid.New().String()
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO responses (id, request_id, user_id, message, created_at)
			 SELECT ?, ?, ?, ?, ?
			 WHERE EXISTS (SELECT 1 FROM requests WHERE id = ? AND status = 'open')`,
			resp.ID,
			resp.RequestID,
			resp.UserID,
			resp.Message,
			toUnix(resp.CreatedAt),
			resp.RequestID,
		)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return missingOrClosed(ctx, tx, resp.RequestID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: adding response to %s: %w", resp.RequestID, err)
	}
	return nil
}

// UpdateResponse rewrites the message and edited_at of one response.
func (db *DB) UpdateResponse(ctx context.Context, resp *model.Response) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE responses SET message = ?, edited_at = ?
		 WHERE request_id = ? AND id = ?`,
		resp.Message,
		toNullUnix(resp.EditedAt),
		resp.RequestID,
		resp.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating response %s: %w", resp.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("response", resp.ID)
	}
	return nil
}

// CloseRequest performs the open → closed transition.
//
// The UPDATE only matches while status is still 'open' (compare-and-swap),
// and the resolver's helped_count is incremented in the same transaction.
// Two concurrent closes therefore produce one resolution and one conflict.
func (db *DB) CloseRequest(ctx context.Context, id string, params repository.CloseParams) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		resolvedBy := sql.NullString{String: params.ResolvedBy, Valid: params.ResolvedBy != ""}
		result, err := tx.ExecContext(ctx,
			`UPDATE requests
			 SET status = 'closed', resolved_by = ?, resolved_at = ?, solved_outside_platform = ?
			 WHERE id = ? AND status = 'open'`,
			resolvedBy,
			toUnix(params.ResolvedAt),
			boolToInt(params.SolvedOutsidePlatform),
			id,
		)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return missingOrClosed(ctx, tx, id)
		}
		if resolvedBy.Valid {
			return incrementHelped(ctx, tx, params.ResolvedBy)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: closing request %s: %w", id, err)
	}
	return nil
}

// missingOrClosed explains why a conditional write on an open request
// matched no rows.
func missingOrClosed(ctx context.Context, q querier, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return apperror.NotFound("request", id)
	}
	if err != nil {
		return err
	}
	return apperror.Conflict("request is already closed")
}
