package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/cwl2nf/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Conversions ---

const conversionColumns = `id, batch_id, input, workflow_name, strategy, mode, success, valid, overall_score, error, created_at`

// SaveConversion inserts a conversion record, replacing one with the same id.
func (s *SQLiteStore) SaveConversion(ctx context.Context, rec *model.HistoryRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "conversions", "id", rec.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversions (`+conversionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchID, rec.Input, rec.WorkflowName, rec.Strategy, string(rec.Mode),
		boolToInt(rec.Success), boolToInt(rec.Valid), rec.OverallScore, rec.Error,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert conversion %s: %w", rec.ID, err)
	}
	return nil
}

// GetConversion returns the record with the given id, or nil if none exists.
func (s *SQLiteStore) GetConversion(ctx context.Context, id string) (*model.HistoryRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "conversions", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)
	rec, err := scanConversion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListConversions returns conversion records newest first, and the total
// number of matching records.
func (s *SQLiteStore) ListConversions(ctx context.Context, opts model.ListOptions) ([]*model.HistoryRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "conversions", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var countArgs []any
	if opts.BatchID != "" {
		whereSQL = " WHERE batch_id = ?"
		countArgs = append(countArgs, opts.BatchID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + conversionColumns + ` FROM conversions` + whereSQL +
		` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs := []*model.HistoryRecord{}
	for rows.Next() {
		rec, err := scanConversion(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(sc scanner) (*model.HistoryRecord, error) {
	var rec model.HistoryRecord
	var mode, createdAt string
	var success, valid int
	if err := sc.Scan(&rec.ID, &rec.BatchID, &rec.Input, &rec.WorkflowName, &rec.Strategy, &mode,
		&success, &valid, &rec.OverallScore, &rec.Error, &createdAt); err != nil {
		return nil, err
	}
	rec.Mode = model.Mode(mode)
	rec.Success = success != 0
	rec.Valid = valid != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &rec, nil
}

// --- Batches ---

// SaveBatch inserts a batch record, replacing one with the same id.
func (s *SQLiteStore) SaveBatch(ctx context.Context, rec *model.BatchRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "batches", "id", rec.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batches (id, total, successful, failed, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Total, rec.Successful, rec.Failed, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", rec.ID, err)
	}
	return nil
}

// GetBatch returns the batch with the given id, or nil if none exists.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "batches", "id", id)

	rec, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT id, total, successful, failed, created_at FROM batches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListBatches returns batch records newest first, and the total count.
func (s *SQLiteStore) ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, total, successful, failed, created_at FROM batches
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs := []*model.BatchRecord{}
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

func scanBatch(sc scanner) (*model.BatchRecord, error) {
	var rec model.BatchRecord
	var createdAt string
	if err := sc.Scan(&rec.ID, &rec.Total, &rec.Successful, &rec.Failed, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
