package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics"
)

var quiet = zerolog.New(nil).Level(zerolog.Disabled)

const positiveRate = `
def compute(columns, params):
    if "prediction" not in columns:
        skip("prediction column not bound")
    preds = columns["prediction"]
    if len(preds) == 0:
        skip("no rows")
    hits = len([p for p in preds if p == 1])
    return hits / len(preds), {"rows": len(preds), "label": params.get("label", "none")}
`

func frame() *dataset.Frame {
	return dataset.MustNew(
		dataset.NewSeries("pred", []string{"1", "0", "1", "1"}),
		dataset.NewSeries("y", []string{"1", "0", "0", "1"}),
	)
}

func TestMetric_Compute(t *testing.T) {
	m, err := New("positive_rate", "positive_rate.star", positiveRate, time.Second, quiet)
	require.NoError(t, err)
	assert.Equal(t, "positive_rate", m.Key())

	roles := metrics.NewRoles()
	roles.SetColumn("prediction", "pred")
	roles.SetParam("label", "approved")

	v, err := m.Compute(context.Background(), frame(), roles)
	require.NoError(t, err)
	assert.Equal(t, 0.75, v.Number)
	assert.Equal(t, int64(4), v.Metadata["rows"])
	assert.Equal(t, "approved", v.Metadata["label"])
}

func TestMetric_Skip(t *testing.T) {
	m, err := New("positive_rate", "positive_rate.star", positiveRate, time.Second, quiet)
	require.NoError(t, err)

	roles := metrics.NewRoles()
	roles.SetColumn("prediction", "MISSING")

	_, err = m.Compute(context.Background(), frame(), roles)
	require.Error(t, err)
	assert.Equal(t, metrics.ErrorClassExpectedSkip, metrics.Classify(err))
	assert.Contains(t, err.Error(), "prediction column not bound")
}

func TestMetric_Failures(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "runtime error", source: "def compute(columns, params):\n    return 1 // 0\n"},
		{name: "wrong return type", source: "def compute(columns, params):\n    return \"high\"\n"},
		{name: "bad tuple", source: "def compute(columns, params):\n    return (1, 2, 3)\n"},
		{name: "bad metadata", source: "def compute(columns, params):\n    return (1, [1])\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New("m", "m.star", tt.source, time.Second, quiet)
			require.NoError(t, err)

			_, err = m.Compute(context.Background(), frame(), metrics.NewRoles())
			require.Error(t, err)
			assert.Equal(t, metrics.ErrorClassUnexpectedFailure, metrics.Classify(err))
		})
	}
}

func TestMetric_Timeout(t *testing.T) {
	src := `
def compute(columns, params):
    n = 0
    for i in range(100000000):
        n += i
    return n
`
	m, err := New("slow", "slow.star", src, 50*time.Millisecond, quiet)
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Compute(context.Background(), frame(), metrics.NewRoles())
	require.Error(t, err)
	assert.Equal(t, metrics.ErrorClassUnexpectedFailure, metrics.Classify(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("m", "m.star", "x = \n", time.Second, quiet)
	assert.Error(t, err)

	_, err = New("m", "m.star", "value = 1\n", time.Second, quiet)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positive_rate.star"), []byte(positiveRate), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))

	reg := metrics.NewRegistry()
	keys, err := LoadDir(dir, reg, 0, quiet)
	require.NoError(t, err)
	assert.Equal(t, []string{"positive_rate"}, keys)

	_, ok := reg.Lookup("positive_rate")
	assert.True(t, ok)

	// Registering the same key twice fails.
	_, err = LoadDir(dir, reg, 0, quiet)
	assert.Error(t, err)

	_, err = LoadDir(filepath.Join(dir, "missing"), reg, 0, quiet)
	assert.Error(t, err)
}
