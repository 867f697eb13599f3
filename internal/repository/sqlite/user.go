package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/pipeline"
	"github.com/sakif/user-directory/internal/query"
	"github.com/sakif/user-directory/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, age, city, created_at, updated_at`

// sortColumns maps a listing sort field to its column. Only these values are
// ever spliced into ORDER BY.
var sortColumns = map[query.SortField]string{
	query.SortUsername:  "username",
	query.SortEmail:     "email",
	query.SortCreatedAt: "created_at",
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.Email, &u.Age, &u.City, &u.CreatedAt, &u.UpdatedAt)
}

// Create inserts a new user, generating its ID (xid: 20 chars, URL-safe,
// time-sortable) and timestamps. A taken email comes back as apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.Age,
		user.City,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("User", "email")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// List returns one window of users and the total number of users.
//
// The total is counted over the whole table, independently of the window.
// id breaks ties so that pages never overlap when the sort column repeats.
func (db *DB) List(ctx context.Context, w query.Window) ([]model.User, int, error) {
	column, ok := sortColumns[w.SortField]
	if !ok {
		column = sortColumns[query.DefaultSortBy]
	}
	dir := "DESC"
	if w.Direction == query.Ascending {
		dir = "ASC"
	}

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
			userColumns, column, dir, dir),
		w.Limit,
		w.Skip,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	return users, total, nil
}

// Update writes the touched fields of patch and returns the stored record.
//
// Only the columns present in the patch appear in the SET clause; updated_at
// is always refreshed. id and created_at are never written.
func (db *DB) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if patch.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *patch.Username)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.Age != nil {
		sets = append(sets, "age = ?")
		args = append(args, *patch.Age)
	}
	if patch.City != nil {
		sets = append(sets, "city = ?")
		args = append(args, *patch.City)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Duplicate("User", "email")
		}
		return nil, fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("User", id)
	}

	return db.GetByID(ctx, id)
}

// Delete removes a user by ID. Deletion is immediate and final.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("User", id)
	}

	return nil
}

// Aggregate streams every user as a document and runs stages over them.
//
// SQL has no notion of a stage that groups by a column its input no longer
// has, so the chained stages run in Go over the raw documents rather than
// being compiled into GROUP BY clauses.
func (db *DB) Aggregate(ctx context.Context, stages []pipeline.Stage) ([]pipeline.Document, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading users for aggregation: %w", err)
	}
	defer rows.Close()

	docs := make([]pipeline.Document, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		docs = append(docs, userDocument(u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return pipeline.Run(stages, docs), nil
}

// userDocument exposes a record to the pipeline under its JSON field names.
func userDocument(u model.User) pipeline.Document {
	return pipeline.Document{
		pipeline.FieldID: u.ID,
		"username":       u.Username,
		"email":          u.Email,
		"age":            int64(u.Age),
		"city":           u.City,
		"createdAt":      u.CreatedAt,
		"updatedAt":      u.UpdatedAt,
	}
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate value
// for a UNIQUE column.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Primary result code only (extended codes disabled).
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
