// pkg/store/sqlstore.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"lakelog/pkg/connector"
	"lakelog/pkg/model"
)

// insertBatchSize caps the number of rows per INSERT statement so bind
// parameter counts stay well under every backend's limit
const insertBatchSize = 500

// SQLStore implements TableStore over a DatabaseConnector
type SQLStore struct {
	conn    connector.DatabaseConnector
	db      *sqlx.DB
	dialect connector.Dialect
	logger  *zap.Logger
	timeout time.Duration
}

// NewSQLStore creates a store over the given connector
func NewSQLStore(conn connector.DatabaseConnector, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		conn:    conn,
		db:      conn.DB(),
		dialect: conn.Dialect(),
		logger:  logger.Named("store"),
		timeout: conn.QueryTimeout(),
	}
}

// Probe reports existence, columns and row count for a table
func (s *SQLStore) Probe(ctx context.Context, loc Location) (ProbeResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	// information_schema is the portable existence check across all three
	// backends; Snowflake upper-cases unquoted identifiers, so compare
	// case-insensitively.
	query := s.rebind(`
		SELECT column_name
		FROM information_schema.columns
		WHERE lower(table_schema) = lower(?) AND lower(table_name) = lower(?)
		ORDER BY ordinal_position`)

	rows, err := s.db.QueryContext(ctx, query, loc.Schema, loc.Table)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: probing %s: %v", ErrUnavailable, loc, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return ProbeResult{}, fmt.Errorf("%w: scanning columns of %s: %v", ErrUnavailable, loc, err)
		}
		columns = append(columns, strings.ToLower(name))
	}
	if err := rows.Err(); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: probing %s: %v", ErrUnavailable, loc, err)
	}

	if len(columns) == 0 {
		return ProbeResult{Exists: false}, nil
	}

	var count int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", loc.Qualified())
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: counting %s: %v", ErrUnavailable, loc, err)
	}

	return ProbeResult{Exists: true, Columns: columns, RowCount: count}, nil
}

// MaxKey returns the maximum value of a string key column
func (s *SQLStore) MaxKey(ctx context.Context, loc Location, column string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var max sql.NullString
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", column, loc.Qualified())
	if err := s.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return "", fmt.Errorf("%w: max %s of %s: %v", ErrUnavailable, column, loc, err)
	}
	if !max.Valid {
		return "", fmt.Errorf("max %s of %s: empty table: %w", column, loc, ErrNotFound)
	}
	return max.String, nil
}

// CreateTable creates the table with the declared schema
func (s *SQLStore) CreateTable(ctx context.Context, loc Location, schema model.Schema, mode WriteMode) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if mode == Overwrite {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", loc.Qualified())); err != nil {
			return fmt.Errorf("failed to drop %s: %w", loc, err)
		}
	}

	defs := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		def := fmt.Sprintf("%s %s", c.Name, c.Type)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs[i] = def
	}

	createSQL := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		loc.Qualified(),
		strings.Join(defs, ",\n\t"),
	)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", loc, err)
	}

	s.logger.Info("Created table",
		zap.String("table", loc.Qualified()),
		zap.Bool("overwrite", mode == Overwrite))
	return nil
}

// Append inserts rows unconditionally
func (s *SQLStore) Append(ctx context.Context, loc Location, schema model.Schema, rows [][]any) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cols := schema.ColumnNames()
	var total int64

	for start := 0; start < len(rows); start += insertBatchSize {
		batch := rows[start:min(start+insertBatchSize, len(rows))]

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			loc.Qualified(),
			strings.Join(cols, ", "),
			valuesPlaceholders(len(batch), len(cols)),
		)

		result, err := s.db.ExecContext(ctx, s.rebind(query), flatten(batch)...)
		if err != nil {
			return total, fmt.Errorf("append to %s: %w", loc, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(len(batch))
		}
	}

	return total, nil
}

// InsertMissing inserts only the rows whose key is not already present
func (s *SQLStore) InsertMissing(ctx context.Context, loc Location, schema model.Schema, rows [][]any) (int64, error) {
	if schema.Key == "" {
		return 0, fmt.Errorf("insert-only upsert into %s: schema has no key column", loc)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cols := schema.ColumnNames()
	sourceCols := make([]string, len(cols))
	for i, c := range cols {
		sourceCols[i] = "v." + c
	}

	var total int64
	for start := 0; start < len(rows); start += insertBatchSize {
		batch := rows[start:min(start+insertBatchSize, len(rows))]

		// The anti-join keeps each batch a single atomic statement: a
		// concurrent identical merge may win individual keys but can never
		// duplicate them.
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM (VALUES %s) AS v (%s) WHERE v.%s NOT IN (SELECT %s FROM %s)",
			loc.Qualified(),
			strings.Join(cols, ", "),
			strings.Join(sourceCols, ", "),
			valuesPlaceholders(len(batch), len(cols)),
			strings.Join(cols, ", "),
			schema.Key,
			schema.Key,
			loc.Qualified(),
		)

		result, err := s.db.ExecContext(ctx, s.rebind(query), flatten(batch)...)
		if err != nil {
			return total, fmt.Errorf("insert-only upsert into %s: %w", loc, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			total += n
		}
	}

	return total, nil
}

// DeleteWhere removes rows matching the predicate
func (s *SQLStore) DeleteWhere(ctx context.Context, loc Location, predicate string, args ...any) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", loc.Qualified(), predicate)
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", loc, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete count from %s: %w", loc, err)
	}
	return n, nil
}

// CountWhere counts rows matching the predicate
func (s *SQLStore) CountWhere(ctx context.Context, loc Location, predicate string, args ...any) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", loc.Qualified(), predicate)
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count from %s: %w", loc, err)
	}
	return count, nil
}

// Compact reclaims storage after bulk deletes
func (s *SQLStore) Compact(ctx context.Context, loc Location) error {
	stmt := s.dialect.CompactStatement(loc.Qualified())
	if stmt == "" {
		s.logger.Debug("Compaction is automatic on this backend",
			zap.String("dialect", s.dialect.Name))
		return nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("compact %s: %w", loc, err)
	}

	s.logger.Debug("Compacted table", zap.String("table", loc.Qualified()))
	return nil
}

// Select runs a query and scans all rows into dest
func (s *SQLStore) Select(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.db.SelectContext(ctx, dest, s.rebind(query), args...)
}

// Get runs a query and scans the single result row into dest
func (s *SQLStore) Get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.db.GetContext(ctx, dest, s.rebind(query), args...)
}

func (s *SQLStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLStore) rebind(query string) string {
	return sqlx.Rebind(s.dialect.BindType, query)
}

// valuesPlaceholders builds "(?, ?, ...), (?, ?, ...)" for rowCount rows of
// colCount columns
func valuesPlaceholders(rowCount, colCount int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", colCount), ", ") + ")"
	rows := make([]string, rowCount)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, ", ")
}

func flatten(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	flat := make([]any, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		flat = append(flat, r...)
	}
	return flat
}

// IsNotFound reports whether an error marks normal absence
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether an error marks a backend I/O failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
