package binding

import (
	"strings"

	"github.com/rs/zerolog"
)

// Missing is the sentinel returned when no column could be bound.
const Missing = "MISSING"

type columnSet map[string]struct{}

func newColumnSet(columns []string) columnSet {
	set := make(columnSet, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return set
}

func (s columnSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// Resolve finds the column for a requested role or variable. The first hit
// wins: a non-empty context mapping entry, a literal column, the role's
// synonyms in order, the lower-cased name. Otherwise Missing.
func Resolve(requested string, contextMapping map[string]string, columns []string, synonyms Synonyms) string {
	return resolve(requested, contextMapping, newColumnSet(columns), synonyms.Candidates(requested))
}

// ResolveRole binds one (role, variable) pair of a control's input mapping.
// The variable's synonyms are tried before the role's.
func ResolveRole(role, variable string, contextMapping map[string]string, columns []string, synonyms Synonyms) string {
	candidates := append(append([]string(nil), synonyms.Candidates(variable)...), synonyms.Candidates(role)...)
	return resolve(variable, contextMapping, newColumnSet(columns), candidates)
}

func resolve(name string, contextMapping map[string]string, cols columnSet, candidates []string) string {
	if col := contextMapping[name]; col != "" {
		return col
	}
	if cols.has(name) {
		return name
	}
	for _, cand := range candidates {
		if cols.has(cand) {
			return cand
		}
	}
	if lower := strings.ToLower(name); cols.has(lower) {
		return lower
	}
	return Missing
}

// ResolveMany resolves a list of column-like names. value may be a
// comma-separated string, a []string or a []any of strings. Tokens that cannot
// be bound are returned unchanged. Unsupported input returns nil.
func ResolveMany(value any, columns []string, synonyms Synonyms) []string {
	var tokens []string
	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				tokens = append(tokens, p)
			}
		}
	case []string:
		tokens = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			tokens = append(tokens, s)
		}
	default:
		return nil
	}

	cols := newColumnSet(columns)
	resolved := make([]string, 0, len(tokens))
	for _, token := range tokens {
		resolved = append(resolved, resolveToken(token, cols, synonyms))
	}
	return resolved
}

func resolveToken(token string, cols columnSet, synonyms Synonyms) string {
	if cols.has(token) {
		return token
	}
	for _, g := range synonyms.groups {
		if g.Role != token && !contains(g.Candidates, token) {
			continue
		}
		for _, cand := range g.Candidates {
			if cols.has(cand) {
				return cand
			}
		}
	}
	if lower := strings.ToLower(token); cols.has(lower) {
		return lower
	}
	return token
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Binder resolves roles against a fixed synonym table and logs each binding.
type Binder struct {
	synonyms Synonyms
	logger   zerolog.Logger
}

// NewBinder creates a binder. A zero Synonyms value selects the built-in table.
func NewBinder(synonyms Synonyms, logger zerolog.Logger) *Binder {
	if synonyms.Len() == 0 {
		synonyms = DefaultSynonyms()
	}
	return &Binder{
		synonyms: synonyms,
		logger:   logger.With().Str("component", "role-binder").Logger(),
	}
}

// Synonyms returns the binder's table.
func (b *Binder) Synonyms() Synonyms {
	return b.synonyms
}

// Resolve is Resolve with the binder's table.
func (b *Binder) Resolve(requested string, contextMapping map[string]string, columns []string) string {
	return Resolve(requested, contextMapping, columns, b.synonyms)
}

// BindRole is ResolveRole with the binder's table.
func (b *Binder) BindRole(role, variable string, contextMapping map[string]string, columns []string) string {
	col := ResolveRole(role, variable, contextMapping, columns, b.synonyms)
	b.logger.Debug().
		Str("role", role).
		Str("variable", variable).
		Str("column", col).
		Msg("Role bound")
	return col
}

// ResolveMany is ResolveMany with the binder's table.
func (b *Binder) ResolveMany(value any, columns []string) []string {
	return ResolveMany(value, columns, b.synonyms)
}
