package binding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	syn := DefaultSynonyms()

	tests := []struct {
		name      string
		requested string
		mapping   map[string]string
		columns   []string
		want      string
	}{
		{
			name:      "context mapping wins",
			requested: "target",
			mapping:   map[string]string{"target": "y"},
			columns:   []string{"y", "class"},
			want:      "y",
		},
		{
			name:      "empty mapping entry ignored",
			requested: "target",
			mapping:   map[string]string{"target": ""},
			columns:   []string{"class"},
			want:      "class",
		},
		{
			name:      "literal column",
			requested: "target",
			columns:   []string{"label", "target"},
			want:      "target",
		},
		{
			name:      "synonym order",
			requested: "target",
			columns:   []string{"label", "class"},
			want:      "class",
		},
		{
			name:      "lower-case fallback",
			requested: "Income",
			columns:   []string{"income"},
			want:      "income",
		},
		{
			name:      "missing",
			requested: "prediction",
			columns:   []string{"a", "b"},
			want:      Missing,
		},
		{
			name:      "context mapping is not validated against columns",
			requested: "dimension",
			mapping:   map[string]string{"dimension": "not_a_column"},
			columns:   []string{"sex"},
			want:      "not_a_column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.requested, tt.mapping, tt.columns, syn))
		})
	}
}

func TestResolveRole(t *testing.T) {
	syn := DefaultSynonyms()

	// Variable synonyms come before role synonyms.
	assert.Equal(t, "sex", ResolveRole("dimension", "gender", nil, []string{"age", "sex"}, syn))

	// Falls back to role synonyms when the variable has none.
	assert.Equal(t, "age", ResolveRole("dimension", "protected", nil, []string{"age"}, syn))

	// Context mapping is keyed by variable.
	assert.Equal(t, "col_y", ResolveRole("target", "y", map[string]string{"y": "col_y"}, []string{"class"}, syn))

	assert.Equal(t, Missing, ResolveRole("target", "y", nil, []string{"foo"}, syn))
}

func TestResolveMany(t *testing.T) {
	syn := DefaultSynonyms()
	columns := []string{"sexo", "edad", "zip", "income"}

	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{name: "comma string", value: "gender, age ,, zip", want: []string{"sexo", "edad", "zip"}},
		{name: "string slice", value: []string{"sex", "Income"}, want: []string{"sexo", "income"}},
		{name: "any slice", value: []any{"race", "zip"}, want: []string{"race", "zip"}},
		{name: "mixed any slice", value: []any{"zip", 3}, want: nil},
		{name: "unsupported", value: 42, want: nil},
		{name: "empty string", value: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMany(tt.value, columns, syn))
		})
	}
}

func TestSynonyms_DefaultIsFreshCopy(t *testing.T) {
	a := DefaultSynonyms()
	a.Set("target", "only_this")

	b := DefaultSynonyms()
	assert.Contains(t, b.Candidates("target"), "label")
	assert.Equal(t, []string{"only_this"}, a.Candidates("target"))
}

func TestSynonyms_Merge(t *testing.T) {
	base := NewSynonyms(Group{Role: "target", Candidates: []string{"y"}})
	extra := NewSynonyms(
		Group{Role: "target", Candidates: []string{"y", "churned"}},
		Group{Role: "region", Candidates: []string{"country"}},
	)

	merged := base.Merge(extra)
	assert.Equal(t, []string{"y", "churned"}, merged.Candidates("target"))
	assert.Equal(t, []string{"country"}, merged.Candidates("region"))
	assert.Equal(t, []string{"y"}, base.Candidates("target"), "merge must not modify the receiver")

	groups := merged.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "target", groups[0].Role)
	assert.Equal(t, "region", groups[1].Role)
}

func TestLoadSynonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  - churned\nregion:\n  - country\n  - nation\n"), 0644))

	syn, err := LoadSynonyms(path)
	require.NoError(t, err)

	assert.Equal(t, "churned", Resolve("target", nil, []string{"churned"}, syn))
	assert.Equal(t, "nation", Resolve("region", nil, []string{"nation"}, syn))
	assert.Equal(t, "sexo", Resolve("gender", nil, []string{"sexo"}, syn), "built-ins are kept")

	_, err = LoadSynonyms(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- a\n- b\n"), 0644))
	_, err = LoadSynonyms(bad)
	assert.Error(t, err)
}

func TestBinder(t *testing.T) {
	b := NewBinder(Synonyms{}, zerolog.New(nil).Level(zerolog.Disabled))

	assert.Equal(t, DefaultSynonyms().Len(), b.Synonyms().Len())
	assert.Equal(t, "pred", b.BindRole("prediction", "y_hat", nil, []string{"pred"}))
	assert.Equal(t, "class", b.Resolve("target", nil, []string{"class"}))
	assert.Equal(t, []string{"sex"}, b.ResolveMany("gender", []string{"sex"}))
}
