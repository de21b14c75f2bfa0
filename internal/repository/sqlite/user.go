package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, external_id, username, display_name, avatar, email,
	zipcode, city, state, location_label, bio, contact_methods, skills, offers,
	open_to_help, points, helped_count, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                       model.User
		contact, skills, offers string
		openToHelp              int
		createdAt, updatedAt    int64
	)
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.DisplayName, &u.Avatar, &u.Email,
		&u.Location.Zipcode, &u.Location.City, &u.Location.State, &u.Location.Label,
		&u.Bio, &contact, &skills, &offers,
		&openToHelp, &u.Points, &u.HelpedCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contact), &u.Contact); err != nil {
		return nil, fmt.Errorf("decoding contact methods: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &u.Skills); err != nil {
		return nil, fmt.Errorf("decoding skills: %w", err)
	}
	if err := json.Unmarshal([]byte(offers), &u.Offers); err != nil {
		return nil, fmt.Errorf("decoding offers: %w", err)
	}
	u.OpenToHelp = openToHelp != 0
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return &u, nil
}

// encodeList marshals a list column, storing nil as "[]".
func encodeList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Upsert inserts or refreshes a user based on their external identity id.
//
// A returning user keeps their internal ID and every profile field; only the
// identity fields the provider owns (username, avatar, email) are refreshed.
// After the call, user holds the full stored record.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.ExternalID == "" {
		return apperror.ValidationFailed("externalId", "external identity id is required")
	}

	// A single statement, so two first logins racing on the same
	// external id both land on one row.
	now := toUnix(time.Now())
	var id string
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, username, username_folded, display_name, avatar, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET
		     username        = excluded.username,
		     username_folded = excluded.username_folded,
		     avatar          = excluded.avatar,
		     email           = excluded.email,
		     updated_at      = excluded.updated_at
		 RETURNING id`,
		xid.New().String(), user.ExternalID, user.Username, fold(user.Username),
		user.DisplayName, user.Avatar, user.Email, now, now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user (externalID=%s): %w", user.ExternalID, err)
	}

	stored, err := db.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID retrieves a user with their request and response back-references.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	u.RequestIDs, err = db.selectIDs(ctx,
		`SELECT id FROM requests WHERE author_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing requests of user %s: %w", id, err)
	}
	u.ResponseIDs, err = db.selectIDs(ctx,
		`SELECT id FROM responses WHERE user_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing responses of user %s: %w", id, err)
	}

	return u, nil
}

// maxBatch caps the bound variables of one IN (...) query well below
// SQLite's limit.
const maxBatch = 500

// GetUsersByIDs loads the users that exist among ids. Missing ids are
// simply absent from the result. Back-references are not populated.
func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	result := make(map[string]*model.User, len(ids))
	for len(ids) > 0 {
		n := min(len(ids), maxBatch)
		if err := db.loadUsers(ctx, ids[:n], result); err != nil {
			return nil, err
		}
		ids = ids[n:]
	}
	return result, nil
}

func (db *DB) loadUsers(ctx context.Context, ids []string, into map[string]*model.User) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		into[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return nil
}

// FindByUsernames returns users whose username case-insensitively equals one
// of usernames, oldest account first. Long lists are queried in batches.
func (db *DB) FindByUsernames(ctx context.Context, usernames []string) ([]model.User, error) {
	var users []model.User
	for len(usernames) > 0 {
		n := min(len(usernames), maxBatch)
		batch, err := db.findByUsernames(ctx, usernames[:n])
		if err != nil {
			return nil, err
		}
		users = append(users, batch...)
		usernames = usernames[n:]
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (db *DB) findByUsernames(ctx context.Context, usernames []string) ([]model.User, error) {
	args := make([]any, len(usernames))
	for i, name := range usernames {
		args[i] = fold(name)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username_folded IN (`+placeholders(len(usernames))+`)
		 ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding users by username: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of patch. patch.Location sets the
// zipcode, city and state; the free-text label travels in patch.Label.
func (db *DB) UpdateProfile(ctx context.Context, id string, patch repository.ProfilePatch) (*model.User, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.DisplayName != nil {
		set("display_name", *patch.DisplayName)
	}
	if patch.Location != nil {
		set("zipcode", patch.Location.Zipcode)
		set("city", patch.Location.City)
		set("state", patch.Location.State)
	}
	if patch.Label != nil {
		set("location_label", *patch.Label)
	}
	if patch.Bio != nil {
		set("bio", *patch.Bio)
	}
	if patch.Contact != nil {
		v, err := encodeList(*patch.Contact)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding contact methods: %w", err)
		}
		set("contact_methods", v)
	}
	if patch.Skills != nil {
		v, err := encodeList(*patch.Skills)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding skills: %w", err)
		}
		set("skills", v)
	}
	if patch.Offers != nil {
		v, err := encodeList(*patch.Offers)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding offers: %w", err)
		}
		set("offers", v)
	}
	if patch.OpenToHelp != nil {
		set("open_to_help", boolToInt(*patch.OpenToHelp))
	}
	set("updated_at", toUnix(time.Now()))
	args = append(args, id)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating profile %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("user", id)
	}

	return db.GetUserByID(ctx, id)
}

// Catalog aggregates the distinct skills and offers over every user.
//
// This is a full scan of the users table. The service layer caches the
// result, so it runs at most once per cache period or profile edit.
func (db *DB) Catalog(ctx context.Context) (*repository.Catalog, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT skills, offers FROM users ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating catalog: %w", err)
	}
	defer rows.Close()

	skills := map[string]string{}
	offers := map[string]string{}
	collect := func(raw string, into map[string]string) error {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return err
		}
		for _, item := range items {
			key := fold(item)
			if _, seen := into[key]; !seen {
				into[key] = item
			}
		}
		return nil
	}

	for rows.Next() {
		var s, o string
		if err := rows.Scan(&s, &o); err != nil {
			return nil, fmt.Errorf("sqlite: scanning catalog row: %w", err)
		}
		if err := collect(s, skills); err != nil {
			return nil, fmt.Errorf("sqlite: decoding skills: %w", err)
		}
		if err := collect(o, offers); err != nil {
			return nil, fmt.Errorf("sqlite: decoding offers: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating catalog: %w", err)
	}

	return &repository.Catalog{
		Skills: sortedValues(skills),
		Offers: sortedValues(offers),
	}, nil
}

// incrementHelped adds one to the user's helped count inside tx.
func incrementHelped(ctx context.Context, tx *sql.Tx, userID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET helped_count = helped_count + 1 WHERE id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("incrementing helped count of %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func (db *DB) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sortedValues returns the map values ordered case-insensitively.
func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}
