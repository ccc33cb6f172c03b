package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/tags"
	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store persists case records in a SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	// mu serializes writers so read-modify-write updates never lose an edit.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "casebook", "casebook.sqlite")
}

// Open opens (creating if needed) the database at path and applies the schema.
// The special path ":memory:" opens a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:    db,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new record built from d, assigning its id and timestamps.
func (s *Store) Create(ctx context.Context, d cases.Draft) (cases.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec := cases.Record{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
		Draft:     d.Normalized(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, recordArgs(rec)...)
	if err != nil {
		return cases.Record{}, fmt.Errorf("insert case: %w", err)
	}

	s.log.Debug("case created", zap.String("id", rec.ID), zap.String("specialty", rec.Specialty))
	return rec, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (cases.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	rec, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Record{}, apperr.NotFound("case", id)
	}
	if err != nil {
		return cases.Record{}, err
	}
	return rec, nil
}

// List returns records newest first. A limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, skip, limit int) ([]cases.Record, error) {
	if skip < 0 {
		return nil, apperr.Validation("skip must not be negative")
	}
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		ORDER BY createdAt DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, skip)
}

// All returns every record newest first.
func (s *Store) All(ctx context.Context) ([]cases.Record, error) {
	return s.List(ctx, 0, 0)
}

// Search returns the records matching q, newest first.
func (s *Store) Search(ctx context.Context, q cases.Query) ([]cases.Record, error) {
	stmt := `SELECT ` + caseColumns + ` FROM cases WHERE 1 = 1`
	var args []any
	if q.Specialty != nil {
		stmt += ` AND specialty = ?`
		args = append(args, *q.Specialty)
	}
	if q.FavoritesOnly {
		stmt += ` AND isFavorite = 1`
	}
	stmt += ` ORDER BY createdAt DESC, id DESC`

	candidates, err := s.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}

	// Substring and tag predicates run in Go: SQLite's lower() is ASCII-only
	// and tags live in a JSON column.
	matched := []cases.Record{}
	for _, rec := range candidates {
		if q.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Update merges p into the record and bumps its UpdatedAt, atomically.
func (s *Store) Update(ctx context.Context, id string, p cases.Patch) (cases.Record, error) {
	return s.mutate(ctx, id, func(d cases.Draft) cases.Draft {
		return p.Apply(d)
	})
}

// RemoveTags removes tags from the record, atomically.
func (s *Store) RemoveTags(ctx context.Context, id string, drop []string) (cases.Record, error) {
	return s.mutate(ctx, id, func(d cases.Draft) cases.Draft {
		d.Tags = tags.Remove(d.Tags, drop)
		return d
	})
}

// Delete permanently removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("case", id)
	}

	s.log.Debug("case deleted", zap.String("id", id))
	return nil
}

// TagLists returns the tag list of every record.
func (s *Store) TagLists(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tags FROM cases`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var lists [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		l, err := decodeList(raw)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (s *Store) mutate(ctx context.Context, id string, change func(cases.Draft) cases.Draft) (cases.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cases.Record{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	rec, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Record{}, apperr.NotFound("case", id)
	}
	if err != nil {
		return cases.Record{}, err
	}

	rec.Draft = change(rec.Draft).Normalized()
	rec.UpdatedAt = s.now().UTC()
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}

	all := recordArgs(rec)
	// Every column but id and createdAt, then id for the WHERE clause.
	args := make([]any, 0, len(all))
	args = append(args, all[1:len(all)-2]...)
	args = append(args, rec.UpdatedAt.UnixNano(), rec.ID)
	_, err = tx.ExecContext(ctx, `
		UPDATE cases SET
			audioReference = ?, transcription = ?, specialty = ?, caseType = ?,
			complexity = ?, patientAgeRange = ?, patientGender = ?, summary = ?,
			keyFindings = ?, differentialDiagnosis = ?, learningPoints = ?, tags = ?,
			notes = ?, isFavorite = ?, updatedAt = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return cases.Record{}, fmt.Errorf("update case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return cases.Record{}, fmt.Errorf("commit update: %w", err)
	}

	s.log.Debug("case updated", zap.String("id", rec.ID))
	return rec, nil
}

func (s *Store) query(ctx context.Context, stmt string, args ...any) ([]cases.Record, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	records := []cases.Record{}
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (cases.Record, error) {
	var rec cases.Record
	var findings, differential, learning, tagList string
	var favorite int
	var createdAt, updatedAt int64

	if err := row.Scan(&rec.ID, &rec.AudioReference, &rec.Transcription, &rec.Specialty,
		&rec.CaseType, &rec.Complexity, &rec.Demographics.AgeRange, &rec.Demographics.Gender,
		&rec.Summary, &findings, &differential, &learning, &tagList, &rec.Notes,
		&favorite, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cases.Record{}, err
		}
		return cases.Record{}, fmt.Errorf("scan case: %w", err)
	}

	var err error
	if rec.KeyFindings, err = decodeList(findings); err != nil {
		return cases.Record{}, err
	}
	if rec.DifferentialDiagnosis, err = decodeList(differential); err != nil {
		return cases.Record{}, err
	}
	if rec.LearningPoints, err = decodeList(learning); err != nil {
		return cases.Record{}, err
	}
	if rec.Tags, err = decodeList(tagList); err != nil {
		return cases.Record{}, err
	}
	rec.IsFavorite = favorite != 0
	rec.CreatedAt = timeFromUnixNano(createdAt)
	rec.UpdatedAt = timeFromUnixNano(updatedAt)
	return rec, nil
}

// recordArgs returns the values for caseColumns in order.
func recordArgs(rec cases.Record) []any {
	favorite := 0
	if rec.IsFavorite {
		favorite = 1
	}
	return []any{
		rec.ID, rec.AudioReference, rec.Transcription, rec.Specialty, rec.CaseType,
		rec.Complexity, rec.Demographics.AgeRange, rec.Demographics.Gender, rec.Summary,
		encodeList(rec.KeyFindings), encodeList(rec.DifferentialDiagnosis),
		encodeList(rec.LearningPoints), encodeList(rec.Tags), rec.Notes, favorite,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	}
}

func encodeList(l []string) string {
	if l == nil {
		l = []string{}
	}
	data, _ := json.Marshal(l)
	return string(data)
}

func decodeList(raw string) ([]string, error) {
	l := []string{}
	if raw == "" {
		return l, nil
	}
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("decode list column: %w", err)
	}
	return l, nil
}

func timeFromUnixNano(ts int64) time.Time {
	return time.Unix(0, ts).UTC()
}
