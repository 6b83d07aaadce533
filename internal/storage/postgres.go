package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claude/fitmerge/internal/models"
)

// PostgresRepository is the pgx-backed Repository for server deployments.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *PostgresRepository) Close() {
	p.Pool.Close()
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// SaveExerciseRecord inserts or replaces a record.
func (p *PostgresRepository) SaveExerciseRecord(ctx context.Context, rec models.ExerciseRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = p.Pool.Exec(ctx,
		`INSERT INTO exercise_records (id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, start_time = EXCLUDED.start_time,
		   duration_min = EXCLUDED.duration_min, metadata = EXCLUDED.metadata,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, rec.StartTime, rec.DurationMin, rec.Source, rec.Platform,
		meta, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting exercise record: %w", err)
	}
	return nil
}

// GetExerciseHistory retrieves records in a time range, newest-first.
func (p *PostgresRepository) GetExerciseHistory(ctx context.Context, dr DateRange) ([]models.ExerciseRecord, error) {
	query := `SELECT id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at
		 FROM exercise_records`
	var conds []string
	var args []any
	if !dr.Start.IsZero() {
		args = append(args, dr.Start)
		conds = append(conds, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !dr.End.IsZero() {
		args = append(args, dr.End)
		conds = append(conds, fmt.Sprintf("start_time < $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC, id ASC"

	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercise history: %w", err)
	}
	defer rows.Close()

	var out []models.ExerciseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecordByID returns the record, or (nil, nil) when absent.
func (p *PostgresRepository) GetRecordByID(ctx context.Context, id string) (*models.ExerciseRecord, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, name, start_time, duration_min, source, platform, metadata, created_at, updated_at
		 FROM exercise_records WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord applies a partial update and bumps updated_at.
func (p *PostgresRepository) UpdateRecord(ctx context.Context, id string, fields RecordFields) error {
	if fields.Empty() {
		return nil
	}

	sets := []string{"updated_at = now()"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.StartTime != nil {
		add("start_time", *fields.StartTime)
	}
	if fields.DurationMin != nil {
		add("duration_min", *fields.DurationMin)
	}
	if fields.Metadata != nil {
		meta, err := json.Marshal(*fields.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		add("metadata", meta)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE exercise_records SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := p.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating exercise record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes a record.
func (p *PostgresRepository) DeleteRecord(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM exercise_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting exercise record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveAuditRecord appends an audit entry.
func (p *PostgresRepository) SaveAuditRecord(ctx context.Context, rec models.AuditRecord) error {
	before, after, meta, err := encodeAuditPayloads(rec)
	if err != nil {
		return err
	}

	_, err = p.Pool.Exec(ctx,
		`INSERT INTO audit_records (id, action, ts, record_id, before_data, after_data, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.Action, rec.Timestamp, rec.RecordID, before, after, meta)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// GetAuditTrail returns audit entries newest-first. A non-positive limit
// returns everything.
func (p *PostgresRepository) GetAuditTrail(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, action, ts, record_id, before_data, after_data, metadata
		 FROM audit_records ORDER BY ts DESC, id DESC`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}

	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CleanupOldAuditRecords trims the trail to the newest maxRecords entries
// in a single statement.
func (p *PostgresRepository) CleanupOldAuditRecords(ctx context.Context, maxRecords int) error {
	if maxRecords < 0 {
		maxRecords = 0
	}
	_, err := p.Pool.Exec(ctx,
		`DELETE FROM audit_records WHERE id NOT IN (
		   SELECT id FROM audit_records ORDER BY ts DESC, id DESC LIMIT $1
		 )`, maxRecords)
	if err != nil {
		return fmt.Errorf("trimming audit records: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (models.ExerciseRecord, error) {
	var rec models.ExerciseRecord
	var meta []byte
	err := row.Scan(&rec.ID, &rec.Name, &rec.StartTime, &rec.DurationMin,
		&rec.Source, &rec.Platform, &meta, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return rec, nil
}

func scanAudit(row pgx.Row) (models.AuditRecord, error) {
	var rec models.AuditRecord
	var before, after, meta []byte
	err := row.Scan(&rec.ID, &rec.Action, &rec.Timestamp, &rec.RecordID, &before, &after, &meta)
	if err != nil {
		return rec, fmt.Errorf("scanning audit record: %w", err)
	}
	return rec, decodeAuditPayloads(&rec, before, after, meta)
}

func encodeAuditPayloads(rec models.AuditRecord) (before, after, meta []byte, err error) {
	if rec.Before != nil {
		if before, err = json.Marshal(rec.Before); err != nil {
			return nil, nil, nil, fmt.Errorf("encoding before data: %w", err)
		}
	}
	if rec.After != nil {
		if after, err = json.Marshal(rec.After); err != nil {
			return nil, nil, nil, fmt.Errorf("encoding after data: %w", err)
		}
	}
	if meta, err = json.Marshal(rec.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding audit metadata: %w", err)
	}
	return before, after, meta, nil
}

func decodeAuditPayloads(rec *models.AuditRecord, before, after, meta []byte) error {
	if len(before) > 0 {
		rec.Before = &models.AuditSnapshot{}
		if err := json.Unmarshal(before, rec.Before); err != nil {
			return fmt.Errorf("decoding before data: %w", err)
		}
	}
	if len(after) > 0 {
		rec.After = &models.AuditSnapshot{}
		if err := json.Unmarshal(after, rec.After); err != nil {
			return fmt.Errorf("decoding after data: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return fmt.Errorf("decoding audit metadata: %w", err)
		}
	}
	return nil
}
