package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrMissingTenantScope is returned for statements that are not filtered
	// by tenant_id = $1 or are issued without a tenant.
	ErrMissingTenantScope = errors.New("statement is not scoped to a tenant")
)

var (
	sqlNoise        = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/|'(?:[^']|'')*'`)
	scopeToken      = regexp.MustCompile(`(?i)\btenant_id\s*=\s*\$1\b|\bOR\b|[()]`)
	identPattern    = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// reserved columns are written by the helpers themselves.
var reserved = map[string]bool{
	"tenant_id":  true,
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

func checkScope(tenantID uuid.UUID, sql string) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrMissingTenantScope)
	}
	if !scopedByTenant(sql) {
		return ErrMissingTenantScope
	}
	return nil
}

// scopedGroup is one parenthesised level of a statement.
type scopedGroup struct {
	or        bool
	predicate bool
	children  []*scopedGroup
}

func (g *scopedGroup) scoped() bool {
	if g.or {
		return false
	}
	if g.predicate {
		return true
	}
	for _, c := range g.children {
		if c.scoped() {
			return true
		}
	}
	return false
}

// scopedByTenant reports whether sql filters on tenant_id = $1 outside
// comments and literals, with no OR at the predicate's level or any level
// enclosing it.
func scopedByTenant(sql string) bool {
	sql = sqlNoise.ReplaceAllString(sql, " ")
	root := &scopedGroup{}
	stack := []*scopedGroup{root}
	for _, tok := range scopeToken.FindAllString(sql, -1) {
		top := stack[len(stack)-1]
		switch {
		case tok == "(":
			child := &scopedGroup{}
			top.children = append(top.children, child)
			stack = append(stack, child)
		case tok == ")":
			if len(stack) == 1 {
				return false
			}
			stack = stack[:len(stack)-1]
		case strings.EqualFold(tok, "OR"):
			top.or = true
		default:
			top.predicate = true
		}
	}
	return len(stack) == 1 && root.scoped()
}

func scoped(tenantID uuid.UUID, args []interface{}) []interface{} {
	return append([]interface{}{tenantID}, args...)
}

// TenantQuery runs a SELECT whose WHERE clause must contain tenant_id = $1.
// tenantID is bound as $1 and args follow from $2.
func TenantQuery(ctx context.Context, q Querier, tenantID uuid.UUID, sql string, args ...interface{}) (pgx.Rows, error) {
	if err := checkScope(tenantID, sql); err != nil {
		return nil, err
	}
	return Conn(ctx, q).Query(ctx, sql, scoped(tenantID, args)...)
}

// TenantQueryRow is TenantQuery for a single row. Scope violations surface
// from Scan.
func TenantQueryRow(ctx context.Context, q Querier, tenantID uuid.UUID, sql string, args ...interface{}) pgx.Row {
	if err := checkScope(tenantID, sql); err != nil {
		return errRow{err: err}
	}
	return Conn(ctx, q).QueryRow(ctx, sql, scoped(tenantID, args)...)
}

// TenantExec runs a scoped statement and reports ErrNotFound when nothing was
// affected.
func TenantExec(ctx context.Context, q Querier, tenantID uuid.UUID, sql string, args ...interface{}) (int64, error) {
	if err := checkScope(tenantID, sql); err != nil {
		return 0, err
	}
	tag, err := Conn(ctx, q).Exec(ctx, sql, scoped(tenantID, args)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TenantInsert inserts values into table with tenant_id set to tenantID.
// When returning is non-empty the listed columns are scanned into dest.
func TenantInsert(ctx context.Context, q Querier, tenantID uuid.UUID, table string, values map[string]interface{}, returning string, dest ...interface{}) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrMissingTenantScope)
	}
	if _, ok := values["tenant_id"]; ok {
		return fmt.Errorf("insert %s: tenant_id is set by the helper", table)
	}
	cols, args, err := columns(table, values)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (tenant_id, %s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	return run(ctx, q, sql, returning, scoped(tenantID, args), dest)
}

// TenantUpdate updates a live row identified by id within the tenant and
// bumps updated_at. ErrNotFound when no row matched.
func TenantUpdate(ctx context.Context, q Querier, tenantID uuid.UUID, table string, id uuid.UUID, values map[string]interface{}, returning string, dest ...interface{}) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrMissingTenantScope)
	}
	if _, ok := values["id"]; ok {
		return fmt.Errorf("update %s: id cannot be changed", table)
	}
	cols, args, err := columns(table, values)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+3))
	}
	sets = append(sets, "updated_at = NOW()")
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL",
		table, strings.Join(sets, ", "))

	return run(ctx, q, sql, returning, append([]interface{}{tenantID, id}, args...), dest)
}

// TenantDelete soft-deletes the row by setting deleted_at.
func TenantDelete(ctx context.Context, q Querier, tenantID uuid.UUID, table string, id uuid.UUID) error {
	if !identPattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	n, err := TenantExec(ctx, q, tenantID,
		fmt.Sprintf("UPDATE %s SET deleted_at = NOW(), updated_at = NOW() WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL", table),
		id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TenantUpsert inserts or, on conflict over conflictCols, updates every
// supplied column. conflictCols must include tenant_id. A conflicting row
// that was soft-deleted is left alone and ErrNotFound is returned.
func TenantUpsert(ctx context.Context, q Querier, tenantID uuid.UUID, table string, values map[string]interface{}, conflictCols []string, returning string, dest ...interface{}) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrMissingTenantScope)
	}
	if _, ok := values["tenant_id"]; ok {
		return fmt.Errorf("upsert %s: tenant_id is set by the helper", table)
	}
	hasTenant := false
	for _, c := range conflictCols {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
		hasTenant = hasTenant || c == "tenant_id"
	}
	if !hasTenant {
		return fmt.Errorf("upsert %s: %w", table, ErrMissingTenantScope)
	}
	cols, args, err := columns(table, values)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = NOW()")
	sql := fmt.Sprintf("INSERT INTO %s (tenant_id, %s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.deleted_at IS NULL",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), strings.Join(sets, ", "), table)

	return run(ctx, q, sql, returning, scoped(tenantID, args), dest)
}

// TenantInsertIgnore inserts values unless a row already exists for
// conflictCols, for append-only tables. It reports whether a row was written.
func TenantInsertIgnore(ctx context.Context, q Querier, tenantID uuid.UUID, table string, values map[string]interface{}, conflictCols []string) (bool, error) {
	if tenantID == uuid.Nil {
		return false, fmt.Errorf("%w: empty tenant id", ErrMissingTenantScope)
	}
	if _, ok := values["tenant_id"]; ok {
		return false, fmt.Errorf("insert %s: tenant_id is set by the helper", table)
	}
	for _, c := range conflictCols {
		if !identPattern.MatchString(c) {
			return false, fmt.Errorf("invalid column name %q", c)
		}
	}
	cols, args, err := columns(table, values)
	if err != nil {
		return false, err
	}

	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (tenant_id, %s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(conflictCols, ", "))

	tag, err := Conn(ctx, q).Exec(ctx, sql, scoped(tenantID, args)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// columns validates identifiers and returns the column names sorted, with
// their values in the same order.
func columns(table string, values map[string]interface{}) ([]string, []interface{}, error) {
	if !identPattern.MatchString(table) {
		return nil, nil, fmt.Errorf("invalid table name %q", table)
	}
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("%s: no columns to write", table)
	}
	cols := make([]string, 0, len(values))
	for col := range values {
		if !identPattern.MatchString(col) {
			return nil, nil, fmt.Errorf("invalid column name %q", col)
		}
		if reserved[col] && col != "id" {
			return nil, nil, fmt.Errorf("%s: column %s is managed by the helper", table, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		args[i] = values[col]
	}
	return cols, args, nil
}

func run(ctx context.Context, q Querier, sql, returning string, args, dest []interface{}) error {
	if returning == "" {
		tag, err := Conn(ctx, q).Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}
	for _, col := range strings.Split(returning, ",") {
		if col = strings.TrimSpace(col); !identPattern.MatchString(col) {
			return fmt.Errorf("invalid returning column %q", col)
		}
	}
	err := Conn(ctx, q).QueryRow(ctx, sql+" RETURNING "+returning, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// TenantCount counts the rows of table matching f.
func TenantCount(ctx context.Context, q Querier, tenantID uuid.UUID, table string, f *Filter) (int, error) {
	if !identPattern.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int
	err := TenantQueryRow(ctx, q, tenantID, "SELECT COUNT(*) FROM "+table+" WHERE "+f.SQL(), f.Args()...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type errRow struct{ err error }

func (r errRow) Scan(...interface{}) error { return r.err }

// NotFound maps pgx.ErrNoRows onto ErrNotFound.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsUniqueViolation reports a unique constraint failure (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

// IsForeignKeyViolation reports a reference to a missing row (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

// IsExclusionViolation reports an exclusion constraint failure (SQLSTATE 23P01).
func IsExclusionViolation(err error) bool {
	return hasCode(err, "23P01")
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
