package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/fitmerge/internal/models"
)

// SQLiteRepository is a file-backed Repository for single-user local
// deployments. The schema is bootstrapped on open.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema
// exists.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS exercise_records (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			start_time   TIMESTAMP NOT NULL,
			duration_min INTEGER NOT NULL,
			source       TEXT NOT NULL,
			platform     TEXT NOT NULL DEFAULT '',
			metadata     TEXT,
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			ts          TIMESTAMP NOT NULL,
			record_id   TEXT NOT NULL,
			before_data TEXT,
			after_data  TEXT,
			metadata    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exercise_start ON exercise_records (start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_records (ts)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

// SaveExerciseRecord inserts or replaces a record.
func (s *SQLiteRepository) SaveExerciseRecord(ctx context.Context, rec models.ExerciseRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO exercise_records
		 (id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Name, rec.StartTime, rec.DurationMin, string(rec.Source), string(rec.Platform),
		string(meta), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting exercise record: %w", err)
	}
	return nil
}

// GetExerciseHistory retrieves records in a time range, newest-first.
func (s *SQLiteRepository) GetExerciseHistory(ctx context.Context, dr DateRange) ([]models.ExerciseRecord, error) {
	query := `SELECT id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at
		 FROM exercise_records`
	var conds []string
	var args []any
	if !dr.Start.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, dr.Start)
	}
	if !dr.End.IsZero() {
		conds = append(conds, "start_time < ?")
		args = append(args, dr.End)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercise history: %w", err)
	}
	defer rows.Close()

	var out []models.ExerciseRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecordByID returns the record, or (nil, nil) when absent.
func (s *SQLiteRepository) GetRecordByID(ctx context.Context, id string) (*models.ExerciseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at
		 FROM exercise_records WHERE id = ?`, id)

	rec, err := s.scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord applies a partial update and bumps updated_at.
func (s *SQLiteRepository) UpdateRecord(ctx context.Context, id string, fields RecordFields) error {
	if fields.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if fields.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *fields.Name)
	}
	if fields.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, *fields.StartTime)
	}
	if fields.DurationMin != nil {
		sets = append(sets, "duration_min = ?")
		args = append(args, *fields.DurationMin)
	}
	if fields.Metadata != nil {
		meta, err := json.Marshal(*fields.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(meta))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE exercise_records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating exercise record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes a record.
func (s *SQLiteRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exercise_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting exercise record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveAuditRecord appends an audit entry.
func (s *SQLiteRepository) SaveAuditRecord(ctx context.Context, rec models.AuditRecord) error {
	before, after, meta, err := encodeAuditPayloads(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, action, ts, record_id, before_data, after_data, metadata)
		 VALUES (?,?,?,?,?,?,?)`,
		rec.ID, string(rec.Action), rec.Timestamp, rec.RecordID,
		nullableText(before), nullableText(after), string(meta))
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// GetAuditTrail returns audit entries newest-first. A non-positive limit
// returns everything.
func (s *SQLiteRepository) GetAuditTrail(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, action, ts, record_id, before_data, after_data, metadata
		 FROM audit_records ORDER BY ts DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var action string
		var before, after, meta sql.NullString
		if err := rows.Scan(&rec.ID, &action, &rec.Timestamp, &rec.RecordID, &before, &after, &meta); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.Action = models.AuditAction(action)
		if err := decodeAuditPayloads(&rec, []byte(before.String), []byte(after.String), []byte(meta.String)); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CleanupOldAuditRecords trims the trail to the newest maxRecords entries.
func (s *SQLiteRepository) CleanupOldAuditRecords(ctx context.Context, maxRecords int) error {
	if maxRecords < 0 {
		maxRecords = 0
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE id NOT IN (
		   SELECT id FROM audit_records ORDER BY ts DESC, id DESC LIMIT ?
		 )`, maxRecords)
	if err != nil {
		return fmt.Errorf("trimming audit records: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) scanRecord(row interface{ Scan(dest ...any) error }) (models.ExerciseRecord, error) {
	var rec models.ExerciseRecord
	var source, platform string
	var meta sql.NullString
	err := row.Scan(&rec.ID, &rec.Name, &rec.StartTime, &rec.DurationMin,
		&source, &platform, &meta, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.Source = models.Source(source)
	rec.Platform = models.Platform(platform)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return rec, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
