package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// Table and column names come from the fieldmap registry, never from callers.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts every reference and ciphertext column of rec.
func (r *PostgresRepository) Create(ctx context.Context, e *fieldmap.Entity, rec *models.Record) (int64, error) {
	cols := make([]string, 0, len(e.Refs)+len(e.Fields))
	args := make([]any, 0, cap(cols))

	for _, ref := range e.Refs {
		cols = append(cols, ref)
		args = append(args, rec.Refs[ref])
	}
	for _, c := range e.Columns() {
		cols = append(cols, c)
		args = append(args, nullable(rec.Columns[c]))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		e.Table, strings.Join(cols, ", "), placeholders(1, len(cols)))

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// GetByID returns the row with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, e *fieldmap.Entity, id int64) (*models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", selectList(e), e.Table)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id), e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context, e *fieldmap.Entity) ([]*models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", selectList(e), e.Table)
	return r.list(ctx, e, query)
}

func (r *PostgresRepository) ListByParent(ctx context.Context, e *fieldmap.Entity, parentID int64) ([]*models.Record, error) {
	if e.Parent == "" {
		return nil, fmt.Errorf("%s has no parent column", e.Resource)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY id", selectList(e), e.Table, e.Parent)
	return r.list(ctx, e, query, parentID)
}

// Update applies a conditional write guarded by the row version.
func (r *PostgresRepository) Update(ctx context.Context, e *fieldmap.Entity, id, version int64, columns map[string]*string) error {
	if len(columns) == 0 {
		return nil
	}

	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+2)
	for _, c := range e.Columns() {
		v, ok := columns[c]
		if !ok {
			continue
		}
		args = append(args, nullable(v))
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	if len(sets) != len(columns) {
		return fmt.Errorf("%s: update names unknown columns", e.Resource)
	}
	sets = append(sets, "version = version + 1")

	args = append(args, id, version)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND version = $%d",
		e.Table, strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// DeleteRow removes a row. Rows still referenced elsewhere yield
// common.ErrConflict.
func (r *PostgresRepository) DeleteRow(ctx context.Context, e *fieldmap.Entity, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", e.Table)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, e *fieldmap.Entity, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", e.Table, err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, e)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, e *fieldmap.Entity) (*models.Record, error) {
	columns := e.Columns()
	refs := make([]sql.NullInt64, len(e.Refs))
	cols := make([]sql.NullString, len(columns))

	rec := &models.Record{
		Refs:    make(map[string]int64, len(e.Refs)),
		Columns: make(map[string]*string, len(columns)),
	}

	dest := make([]any, 0, 2+len(refs)+len(cols))
	dest = append(dest, &rec.ID, &rec.Version)
	for i := range refs {
		dest = append(dest, &refs[i])
	}
	for i := range cols {
		dest = append(dest, &cols[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for i, ref := range e.Refs {
		if refs[i].Valid {
			rec.Refs[ref] = refs[i].Int64
		}
	}
	for i, c := range columns {
		if cols[i].Valid {
			s := cols[i].String
			rec.Columns[c] = &s
		} else {
			rec.Columns[c] = nil
		}
	}
	return rec, nil
}

func selectList(e *fieldmap.Entity) string {
	names := append([]string{"id", "version"}, e.Refs...)
	names = append(names, e.Columns()...)
	return strings.Join(names, ", ")
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgUniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
