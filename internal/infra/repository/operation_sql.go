package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, string(d))
	}
}

// rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const operationsDDL = `CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	client_key TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	payload TEXT NOT NULL
)`

var operationsIndexes = []string{
	`CREATE INDEX IF NOT EXISTS operations_created_at_idx ON operations (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS operations_status_idx ON operations (status)`,
}

// SQLOperationRepository keeps one row per operation: the filterable columns
// plus the full JSON snapshot.
type SQLOperationRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ domain.OperationRepository = (*SQLOperationRepository)(nil)

// OpenSQL opens and pings a database for the given dialect.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// database/sql pools connections; sqlite allows a single writer.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return db, nil
}

// NewSQLOperationRepository ensures the schema exists and returns a repository over db.
func NewSQLOperationRepository(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLOperationRepository, error) {
	if _, err := dialect.driverName(); err != nil {
		return nil, err
	}

	for _, stmt := range append([]string{operationsDDL}, operationsIndexes...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure operations schema: %w", err)
		}
	}

	return &SQLOperationRepository{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}, nil
}

func (r *SQLOperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	now := r.now()
	data, err := encodeOperation(op, now)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(
		`INSERT INTO operations (id, type, status, client_key, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		op.ID, op.Type.String(), op.Status.String(), op.ClientKey,
		op.CreatedAt.UnixNano(), now.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	if affected == 0 {
		return domain.ErrOperationExists
	}

	return nil
}

func (r *SQLOperationRepository) Save(ctx context.Context, op *domain.Operation) error {
	now := r.now()
	data, err := encodeOperation(op, now)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.dialect.rebind(
		`INSERT INTO operations (id, type, status, client_key, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			payload = excluded.payload`),
		op.ID, op.Type.String(), op.Status.String(), op.ClientKey,
		op.CreatedAt.UnixNano(), now.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}

	return nil
}

func (r *SQLOperationRepository) Get(ctx context.Context, id string) (*domain.Operation, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT payload FROM operations WHERE id = ?`), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, fmt.Errorf("select operation: %w", err)
	}

	return decodeOperation([]byte(payload))
}

func (r *SQLOperationRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Operation, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type.String())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT COUNT(*) FROM operations`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count operations: %w", err)
	}

	query := `SELECT payload FROM operations` + where + ` ORDER BY created_at DESC, id DESC`
	pageArgs := append([]any{}, args...)
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		pageArgs = append(pageArgs, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			pageArgs = append(pageArgs, filter.Offset)
		}
	} else if filter.Offset > 0 {
		// LIMIT -1 is sqlite's "no limit"; postgres spells it LIMIT ALL.
		if r.dialect == DialectPostgres {
			query += ` LIMIT ALL OFFSET ?`
		} else {
			query += ` LIMIT -1 OFFSET ?`
		}
		pageArgs = append(pageArgs, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("select operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ops := make([]*domain.Operation, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, fmt.Errorf("scan operation: %w", err)
		}
		op, err := decodeOperation([]byte(payload))
		if err != nil {
			return nil, 0, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate operations: %w", err)
	}

	return ops, total, nil
}

// Ping reports whether the database is reachable.
func (r *SQLOperationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLOperationRepository) Close() error {
	return r.db.Close()
}
