package db

import (
	"fmt"
	"strings"
)

// Filter accumulates WHERE conditions for a tenant-scoped query. $1 is
// reserved for the tenant id, so placeholders start at $2.
type Filter struct {
	conds []string
	args  []interface{}
}

// NewFilter starts with the tenant predicate and excludes soft-deleted rows.
func NewFilter() *Filter {
	return &Filter{conds: []string{"tenant_id = $1", "deleted_at IS NULL"}}
}

// NewAppendOnlyFilter is NewFilter for tables without deleted_at.
func NewAppendOnlyFilter() *Filter {
	return &Filter{conds: []string{"tenant_id = $1"}}
}

// Where adds a condition written with ? placeholders.
func (f *Filter) Where(cond string, args ...interface{}) *Filter {
	for _, a := range args {
		f.args = append(f.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(f.args)+1), 1)
	}
	f.conds = append(f.conds, cond)
	return f
}

// Eq adds col = value unless value is the zero string.
func (f *Filter) Eq(col string, value interface{}) *Filter {
	if s, ok := value.(string); ok && s == "" {
		return f
	}
	return f.Where(col+" = ?", value)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search adds a case-insensitive substring match across cols. Wildcards in
// term match literally.
func (f *Filter) Search(term string, cols ...string) *Filter {
	if term == "" || len(cols) == 0 {
		return f
	}
	f.args = append(f.args, "%"+likeEscaper.Replace(term)+"%")
	n := len(f.args) + 1
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, col, n)
	}
	f.conds = append(f.conds, "("+strings.Join(parts, " OR ")+")")
	return f
}

func (f *Filter) SQL() string {
	return strings.Join(f.conds, " AND ")
}

func (f *Filter) Args() []interface{} {
	return f.args
}

// Paginate returns a LIMIT/OFFSET clause and the filter args extended with
// its values.
func (f *Filter) Paginate(limit, offset int) (string, []interface{}) {
	n := len(f.args) + 2
	args := make([]interface{}, 0, len(f.args)+2)
	args = append(args, f.args...)
	args = append(args, limit, offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", n, n+1), args
}
