package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"

	"ecocalc/internal/core"
)

const (
	calculationsTable = "calculations"
	summaryTable      = "usage_summary"
	exportsTable      = "calculation_exports"

	summaryRowID = 1
	maxTxRetries = 5
)

var calculationColumns = []string{
	"id", "created_at", "payload", "scope1", "scope2", "scope3", "total", "breakdown",
}

// SQLRepository stores calculations and the usage summary in SQLite or Postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// NewSQLiteRepository opens (or creates) a SQLite database file and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, SQLiteDSN(dbPath))
}

// NewPostgresRepository connects to Postgres and migrates the schema.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	return open(DialectPostgres, dsn)
}

func open(d Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: d, sb: d.builder()}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveCalculation inserts the record and folds it into the usage summary in
// one transaction. Contention errors re-run the whole transaction.
func (r *SQLRepository) SaveCalculation(ctx context.Context, rec core.CalculationRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	createdAt := rec.Date.UTC()

	attempts := 0
	err = r.withRetry(ctx, func(tx *sql.Tx) error {
		attempts++
		insert := r.sb.Insert(calculationsTable).
			Columns(calculationColumns...).
			Values(rec.ID, createdAt, string(payload), rec.Scope1, rec.Scope2, rec.Scope3, rec.Total, string(breakdown))
		if err := execTx(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert calculation: %w", err)
		}

		ensure := r.sb.Insert(summaryTable).
			Columns("id", "total_calculations", "total_emissions").
			Values(summaryRowID, 0, 0).
			Suffix("ON CONFLICT (id) DO NOTHING")
		if err := execTx(ctx, tx, ensure); err != nil {
			return fmt.Errorf("ensure usage summary: %w", err)
		}

		update := r.sb.Update(summaryTable).
			Set("total_calculations", sq.Expr("total_calculations + 1")).
			Set("total_emissions", sq.Expr("total_emissions + ?", rec.Total)).
			Set("last_calculation_at", createdAt).
			Set("last_total", rec.Total).
			Where(sq.Eq{"id": summaryRowID})
		if err := execTx(ctx, tx, update); err != nil {
			return fmt.Errorf("update usage summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save calculation: %w", err)
	}

	slog.InfoContext(ctx, "Calculation saved",
		"id", rec.ID,
		"total", rec.Total,
		"backend", string(r.dialect),
		"attempts", attempts)

	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *SQLRepository) ListRecent(ctx context.Context, limit int) ([]core.CalculationRecord, error) {
	if limit <= 0 {
		return []core.CalculationRecord{}, nil
	}
	query := r.sb.Select(calculationColumns...).
		From(calculationsTable).
		OrderBy("created_at DESC", "seq DESC").
		Limit(uint64(limit))

	records, err := r.queryRecords(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list recent calculations: %w", err)
	}
	return records, nil
}

// GetCalculation retrieves a single record by ID.
func (r *SQLRepository) GetCalculation(ctx context.Context, id string) (core.CalculationRecord, error) {
	query := r.sb.Select(calculationColumns...).
		From(calculationsTable).
		Where(sq.Eq{"id": id})

	records, err := r.queryRecords(ctx, query)
	if err != nil {
		return core.CalculationRecord{}, fmt.Errorf("get calculation by id: %w", err)
	}
	if len(records) == 0 {
		return core.CalculationRecord{}, fmt.Errorf("calculation %s: %w", id, ErrNotFound)
	}
	return records[0], nil
}

// Summary returns the usage summary row, or the zero summary if it is missing.
func (r *SQLRepository) Summary(ctx context.Context) (core.UsageSummary, error) {
	query, args, err := r.sb.
		Select("total_calculations", "total_emissions", "last_calculation_at", "last_total").
		From(summaryTable).
		Where(sq.Eq{"id": summaryRowID}).
		ToSql()
	if err != nil {
		return core.UsageSummary{}, fmt.Errorf("build summary query: %w", err)
	}

	var (
		s       core.UsageSummary
		lastAt  sql.NullTime
		lastTot sql.NullFloat64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&s.TotalCalculations, &s.TotalEmissions, &lastAt, &lastTot)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UsageSummary{}, nil
	}
	if err != nil {
		return core.UsageSummary{}, fmt.Errorf("get usage summary: %w", err)
	}

	if lastAt.Valid {
		t := lastAt.Time.UTC()
		s.LastCalculationAt = &t
	}
	if lastTot.Valid {
		v := lastTot.Float64
		s.LastTotal = &v
	}
	return s, nil
}

// ScopeAverages returns the unrounded mean of each scope over all records.
func (r *SQLRepository) ScopeAverages(ctx context.Context) (core.ScopeAverages, error) {
	query, args, err := r.sb.
		Select("AVG(scope1)", "AVG(scope2)", "AVG(scope3)").
		From(calculationsTable).
		ToSql()
	if err != nil {
		return core.ScopeAverages{}, fmt.Errorf("build averages query: %w", err)
	}

	var s1, s2, s3 sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s1, &s2, &s3); err != nil {
		return core.ScopeAverages{}, fmt.Errorf("get scope averages: %w", err)
	}
	return core.ScopeAverages{Scope1: s1.Float64, Scope2: s2.Float64, Scope3: s3.Float64}, nil
}

// PendingExports returns records not yet exported to the report, oldest first.
func (r *SQLRepository) PendingExports(ctx context.Context, limit int) ([]core.CalculationRecord, error) {
	cols := make([]string, len(calculationColumns))
	for i, c := range calculationColumns {
		cols[i] = "c." + c
	}
	query := r.sb.Select(cols...).
		From(calculationsTable + " c").
		LeftJoin(exportsTable + " e ON e.calculation_id = c.id").
		Where(sq.Eq{"e.calculation_id": nil}).
		OrderBy("c.seq ASC").
		Limit(uint64(limit))

	records, err := r.queryRecords(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	return records, nil
}

// MarkExported records that a calculation reached the report. Marking twice is a no-op.
func (r *SQLRepository) MarkExported(ctx context.Context, id string, at time.Time) error {
	err := r.withRetry(ctx, func(tx *sql.Tx) error {
		insert := r.sb.Insert(exportsTable).
			Columns("calculation_id", "exported_at").
			Values(id, at.UTC()).
			Suffix("ON CONFLICT (calculation_id) DO NOTHING")
		return execTx(ctx, tx, insert)
	})
	if err != nil {
		return fmt.Errorf("mark calculation exported: %w", err)
	}

	slog.DebugContext(ctx, "Calculation marked as exported", "id", id)
	return nil
}

func (r *SQLRepository) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]core.CalculationRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []core.CalculationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (core.CalculationRecord, error) {
	var (
		rec                core.CalculationRecord
		payload, breakdown []byte
	)
	err := rows.Scan(&rec.ID, &rec.Date, &payload, &rec.Scope1, &rec.Scope2, &rec.Scope3, &rec.Total, &breakdown)
	if err != nil {
		return rec, fmt.Errorf("scan calculation: %w", err)
	}
	rec.Date = rec.Date.UTC()

	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return rec, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
		return rec, fmt.Errorf("decode breakdown of %s: %w", rec.ID, err)
	}
	return rec, nil
}

// withRetry runs fn in a transaction, retrying with exponential backoff while
// the failure is transient contention.
func (r *SQLRepository) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxTxRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		err := r.inTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			slog.WarnContext(ctx, "Transaction contention, retrying", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func execTx(ctx context.Context, tx *sql.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
