// Package sqlitestore persists request queues in a SQLite database.
// Position shifts are single UPDATE statements and batch position writes
// run in one transaction, so readers never see a torn queue.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// Store implements queue.Store and the artist repository on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ queue.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - a 5-second busy timeout for lock contention
//   - a single open connection, since SQLite has one writer
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func unavailable(err error, op string) error {
	return model.Wrap(model.KindStoreUnavailable, err, "failed to "+op)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

const requestColumns = `id, owner_key, status, position, song_title, song_artist, requester_name,
	message, tip_amount, track_json, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, r *model.Request) error {
	var track sql.NullString
	if r.Track != nil {
		b, err := json.Marshal(r.Track)
		if err != nil {
			return fmt.Errorf("failed to marshal track: %w", err)
		}
		track = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerKey, string(r.Status), r.Position, r.SongTitle, r.SongArtist, r.RequesterName,
		r.Message, r.TipAmount, track, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.E(model.KindConflict, "request already exists")
		}
		return unavailable(err, "insert request")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*model.Request, error) {
	var (
		r         model.Request
		status    string
		message   sql.NullString
		tip       sql.NullFloat64
		track     sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&r.ID, &r.OwnerKey, &status, &r.Position, &r.SongTitle, &r.SongArtist, &r.RequesterName,
		&message, &tip, &track, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = model.Status(status)
	if message.Valid {
		r.Message = &message.String
	}
	if tip.Valid {
		r.TipAmount = &tip.Float64
	}
	if track.Valid {
		var t model.TrackRef
		if err := json.Unmarshal([]byte(track.String), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal track: %w", err)
		}
		r.Track = &t
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &r, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, "request not found")
		}
		return nil, unavailable(err, "get request")
	}
	return r, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return false, unavailable(err, "delete request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err, "delete request")
	}
	return n == 1, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch model.Patch) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.now().UnixNano()}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *patch.Position)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE requests SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, unavailable(err, "update request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err, "update request")
	}
	return n == 1, nil
}

func (s *Store) ShiftPositions(ctx context.Context, sh queue.Shift) (int, error) {
	query := `UPDATE requests SET position = position + ?, updated_at = ?
		WHERE owner_key = ? AND status = ? AND position >= ?`
	args := []any{sh.Delta, s.now().UnixNano(), sh.Owner, string(sh.Status), sh.From}
	if sh.To > 0 {
		query += ` AND position <= ?`
		args = append(args, sh.To)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err, "shift positions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err, "shift positions")
	}
	return int(n), nil
}

func (s *Store) SetPositions(ctx context.Context, owner string, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer tx.Rollback() // No-op if committed

	now := s.now().UnixNano()
	for id, p := range positions {
		res, err := tx.ExecContext(ctx,
			`UPDATE requests SET position = ?, updated_at = ? WHERE id = ? AND owner_key = ?`,
			p, now, id, owner)
		if err != nil {
			return unavailable(err, "set positions")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable(err, "set positions")
		}
		if n != 1 {
			return model.E(model.KindNotFound, "request not found: "+id)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit positions")
	}
	return nil
}

func (s *Store) ListOrdered(ctx context.Context, owner string, status model.Status) ([]*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE owner_key = ?`
	args := []any{owner}
	if status != model.StatusAll {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY position ASC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err, "list requests")
	}
	defer rows.Close()

	out := make([]*model.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, unavailable(err, "list requests")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "list requests")
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, owner string, status model.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE owner_key = ? AND status = ?`, owner, string(status),
	).Scan(&n)
	if err != nil {
		return 0, unavailable(err, "count requests")
	}
	return n, nil
}

// CreateArtist stores a new artist; username and email must both be unused.
func (s *Store) CreateArtist(ctx context.Context, a *model.Artist) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artists WHERE username = ?`, a.Username).Scan(&exists)
	if err != nil {
		return unavailable(err, "create artist")
	}
	if exists > 0 {
		return model.E(model.KindConflict, "Username already registered")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO artists
		(username, display_name, email, password_hash, bio, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Username, a.DisplayName, strings.ToLower(a.Email), a.PasswordHash, a.Bio, a.IsActive,
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.E(model.KindConflict, "Email already registered")
		}
		return unavailable(err, "create artist")
	}
	return nil
}

func (s *Store) GetArtist(ctx context.Context, username string) (*model.Artist, error) {
	var (
		a         model.Artist
		bio       sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT username, display_name, email, password_hash, bio, is_active,
		created_at, updated_at FROM artists WHERE username = ?`, username,
	).Scan(&a.Username, &a.DisplayName, &a.Email, &a.PasswordHash, &bio, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, "artist not found")
		}
		return nil, unavailable(err, "get artist")
	}
	if bio.Valid {
		a.Bio = &bio.String
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &a, nil
}

// SetArtistActive toggles an artist's active flag.
func (s *Store) SetArtistActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE artists SET is_active = ?, updated_at = ? WHERE username = ?`,
		active, s.now().UnixNano(), username)
	if err != nil {
		return unavailable(err, "update artist")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err, "update artist")
	}
	if n == 0 {
		return model.E(model.KindNotFound, "artist not found")
	}
	return nil
}
