package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/infofluencer/infofluencer/platform/go/report"
)

// ReportStore materializes and reads report rows. Each report type owns one
// table whose layout comes from its report.Descriptor.
type ReportStore struct {
	db *DB
	q  Querier
}

// NewReportStore binds the store to a pool-backed DB.
func NewReportStore(db *DB, q Querier) *ReportStore {
	if db == nil || q == nil {
		panic("report store requires db and querier")
	}
	return &ReportStore{db: db, q: q}
}

// Materialize replaces the stored rows of (tenant, t) with rows inside one
// transaction: the delete and the bulk copy commit together or not at all.
func (s *ReportStore) Materialize(ctx context.Context, tenantID uuid.UUID, t report.Type, rows []report.Row, fetchedAt time.Time) (int64, error) {
	d := t.Descriptor()
	columns := append([]string{"tenant_id"}, d.ColumnNames()...)
	columns = append(columns, "fetched_at")

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		v := make([]any, 0, len(columns))
		v = append(v, tenantID)
		v = append(v, r.Values(d)...)
		v = append(v, fetchedAt)
		values = append(values, v)
	}

	var copied int64
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, pgx.Identifier{d.Table}.Sanitize()), tenantID); err != nil {
			return fmt.Errorf("clear %s: %w", d.Table, err)
		}
		if len(values) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{d.Table}, columns, pgx.CopyFromRows(values))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", d.Table, err)
		}
		copied = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// List returns the stored rows of (tenant, t) ordered by key columns.
func (s *ReportStore) List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	d := t.Descriptor()
	names := d.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	keys := d.KeyColumns()
	order := make([]string, len(keys))
	for i, k := range keys {
		order[i] = pgx.Identifier{k.Name}.Sanitize()
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY %s`,
		strings.Join(quoted, ", "), pgx.Identifier{d.Table}.Sanitize(), strings.Join(order, ", "))
	rows, err := s.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Table, err)
	}
	defer rows.Close()

	out := make([]report.Row, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", d.Table, err)
		}
		row := make(report.Row, len(names))
		for i, n := range names {
			row[n] = normalizeValue(d.Columns[i].Kind, vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", d.Table, err)
	}
	return out, nil
}

// Count reports the number of stored rows of (tenant, t).
func (s *ReportStore) Count(ctx context.Context, tenantID uuid.UUID, t report.Type) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1`, pgx.Identifier{t.Descriptor().Table}.Sanitize()), tenantID).Scan(&n)
	return n, err
}

func normalizeValue(kind report.ColumnKind, v any) any {
	switch kind {
	case report.KindInt:
		switch n := v.(type) {
		case int64:
			return n
		case int32:
			return int64(n)
		}
	case report.KindFloat:
		if f, ok := v.(float32); ok {
			return float64(f)
		}
	case report.KindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC()
		}
	}
	return v
}
