package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adeilh/postrank/feed"
	"github.com/lib/pq"
)

const authorColumns = `id, name, handle, followers_count, description, favourites_count, statuses_count, created_at, location, url`

// AuthorRepository reads and writes feed.Author rows inside PostgreSQL.
type AuthorRepository struct {
	db *sql.DB
}

var (
	_ feed.AuthorStore  = (*AuthorRepository)(nil)
	_ feed.AuthorWriter = (*AuthorRepository)(nil)
)

// NewAuthorRepository wraps an existing *sql.DB connection.
func NewAuthorRepository(db *sql.DB) *AuthorRepository {
	return &AuthorRepository{db: db}
}

func (r *AuthorRepository) FindAuthor(ctx context.Context, id string) (feed.Author, error) {
	const query = `SELECT ` + authorColumns + ` FROM authors WHERE id = $1`
	author, err := scanAuthor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return feed.Author{}, translateAuthorError(err)
	}
	return author, nil
}

func (r *AuthorRepository) FindAuthorIDByHandle(ctx context.Context, handle string) (string, error) {
	const query = `SELECT id FROM authors WHERE handle = $1 ORDER BY id LIMIT 1`
	var id string
	if err := r.db.QueryRowContext(ctx, query, handle).Scan(&id); err != nil {
		return "", translateAuthorError(err)
	}
	return id, nil
}

func (r *AuthorRepository) TopAuthorsByFollowers(ctx context.Context, limit int) ([]feed.Author, error) {
	const query = `SELECT ` + authorColumns + ` FROM authors ORDER BY followers_count DESC, id LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, translateAuthorError(err)
	}
	defer rows.Close()

	var out []feed.Author
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return nil, translateAuthorError(err)
		}
		out = append(out, author)
	}
	if err := rows.Err(); err != nil {
		return nil, translateAuthorError(err)
	}
	return out, nil
}

// UpsertAuthor inserts the author or refreshes every column of an existing row.
func (r *AuthorRepository) UpsertAuthor(ctx context.Context, a feed.Author) error {
	const query = `INSERT INTO authors (` + authorColumns + `)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
                   ON CONFLICT (id) DO UPDATE SET
                       name = EXCLUDED.name, handle = EXCLUDED.handle,
                       followers_count = EXCLUDED.followers_count, description = EXCLUDED.description,
                       favourites_count = EXCLUDED.favourites_count, statuses_count = EXCLUDED.statuses_count,
                       created_at = EXCLUDED.created_at, location = EXCLUDED.location, url = EXCLUDED.url`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Handle, a.FollowersCount, a.Description,
		a.FavouritesCount, a.StatusesCount, a.CreatedAt.UTC(),
		nullString(a.Location), nullString(a.URL),
	)
	return translateAuthorError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthor(row rowScanner) (feed.Author, error) {
	var (
		a        feed.Author
		location sql.NullString
		url      sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Handle,
		&a.FollowersCount,
		&a.Description,
		&a.FavouritesCount,
		&a.StatusesCount,
		&a.CreatedAt,
		&location,
		&url,
	)
	if err != nil {
		return feed.Author{}, err
	}
	if location.Valid {
		a.Location = &location.String
	}
	if url.Valid {
		a.URL = &url.String
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func translateAuthorError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return feed.ErrAuthorNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code == "57014":
			return fmt.Errorf("%w: %w", feed.ErrLookupFailed, err)
		}
	}
	return err
}
