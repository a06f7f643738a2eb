package metrics

import (
	"context"
	"sort"
	"strings"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/binding"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
)

// Value is the outcome of a metric computation.
type Value struct {
	Number   float64
	Metadata map[string]any
}

// MetricFn computes one metric over tabular data. Implementations must not
// modify data and must return an expected skip when a role they need is
// unbound or its column is absent.
type MetricFn interface {
	Compute(ctx context.Context, data *dataset.Frame, roles Roles) (Value, error)
}

// Func adapts a plain function to MetricFn.
type Func func(ctx context.Context, data *dataset.Frame, roles Roles) (Value, error)

// Compute calls f.
func (f Func) Compute(ctx context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	return f(ctx, data, roles)
}

// Roles carries the bound columns and static parameters for one metric call.
type Roles struct {
	columns map[string]string
	params  map[string]any
}

// NewRoles returns an empty bag.
func NewRoles() Roles {
	return Roles{
		columns: make(map[string]string),
		params:  make(map[string]any),
	}
}

// SetColumn binds role to a column name (possibly binding.Missing).
func (r Roles) SetColumn(role, column string) {
	r.columns[role] = column
}

// SetParam stores a static parameter. Strings and []string are expected.
func (r Roles) SetParam(name string, value any) {
	r.params[name] = value
}

// Column returns the column bound to role. Unbound and Missing roles report false.
func (r Roles) Column(role string) (string, bool) {
	col, ok := r.columns[role]
	if !ok || col == "" || col == binding.Missing {
		return "", false
	}
	return col, true
}

// Has reports whether role is bound to a real column name.
func (r Roles) Has(role string) bool {
	_, ok := r.Column(role)
	return ok
}

// Param returns a static parameter.
func (r Roles) Param(name string) (any, bool) {
	v, ok := r.params[name]
	return v, ok
}

// ParamString returns a string parameter, or def when absent or not a string.
func (r Roles) ParamString(name, def string) string {
	if s, ok := r.params[name].(string); ok && s != "" {
		return s
	}
	return def
}

// ParamStrings returns a list parameter. A comma-separated string is split.
func (r Roles) ParamStrings(name string) []string {
	switch v := r.params[name].(type) {
	case []string:
		return v
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Missing returns, sorted, those of the given roles that are not bound to a column.
func (r Roles) Missing(roles ...string) []string {
	var missing []string
	for _, role := range roles {
		if !r.Has(role) {
			missing = append(missing, role)
		}
	}
	sort.Strings(missing)
	return missing
}

// Columns returns a copy of the role to column bindings.
func (r Roles) Columns() map[string]string {
	out := make(map[string]string, len(r.columns))
	for k, v := range r.columns {
		out[k] = v
	}
	return out
}

// Params returns a copy of the static parameters.
func (r Roles) Params() map[string]any {
	out := make(map[string]any, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// columns resolves roles to series, returning an expected skip naming every
// role that is unbound or whose column is absent from data.
func columns(data *dataset.Frame, roles Roles, names ...string) ([]*dataset.Series, error) {
	if missing := roles.Missing(names...); len(missing) > 0 {
		return nil, Skip("missing required roles: %s", strings.Join(missing, ", "))
	}
	out := make([]*dataset.Series, len(names))
	var absent []string
	for i, role := range names {
		col, _ := roles.Column(role)
		s, ok := data.Column(col)
		if !ok {
			absent = append(absent, col)
			continue
		}
		out[i] = s
	}
	if len(absent) > 0 {
		return nil, Skip("columns not found: %s (available: %s)",
			strings.Join(absent, ", "), strings.Join(data.Columns(), ", "))
	}
	return out, nil
}
