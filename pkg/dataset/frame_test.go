package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := "y, class ,gender\n1,1,F\n0,0,M\n1,0\n"

	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"y", "class", "gender"}, f.Columns())
	assert.Equal(t, 3, f.Len())
	assert.True(t, f.Has("class"))
	assert.False(t, f.Has("Class"))

	gender, ok := f.Column("gender")
	require.True(t, ok)
	assert.Equal(t, "", gender.At(2), "short rows are padded")
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)
}

func TestReadJSON(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		f, err := ReadJSON(strings.NewReader(`[{"y": 1, "pred": true}, {"y": 0, "pred": false, "g": "F"}]`))
		require.NoError(t, err)

		assert.Equal(t, []string{"pred", "y", "g"}, f.Columns())
		g, _ := f.Column("g")
		assert.Equal(t, []string{"", "F"}, g.Strings())
		pred, _ := f.Column("pred")
		assert.True(t, pred.Positive(0))
		assert.False(t, pred.Positive(1))
	})

	t.Run("columns", func(t *testing.T) {
		f, err := ReadJSON(strings.NewReader(`{"y": [1, 0, 1], "score": [0.9, 0.2, 0.51]}`))
		require.NoError(t, err)

		assert.Equal(t, []string{"score", "y"}, f.Columns())
		score, _ := f.Column("score")
		vals, err := score.Floats()
		require.NoError(t, err)
		assert.Equal(t, []float64{0.9, 0.2, 0.51}, vals)
	})

	t.Run("ragged columns", func(t *testing.T) {
		_, err := ReadJSON(strings.NewReader(`{"a": [1], "b": [1, 2]}`))
		assert.Error(t, err)
	})

	t.Run("scalar", func(t *testing.T) {
		_, err := ReadJSON(strings.NewReader(`42`))
		assert.Error(t, err)
	})
}

func TestSeries(t *testing.T) {
	s := NewSeries("label", []string{"yes", "No", "0.7", "0.5", "TRUE", "x"})

	var positives []bool
	for i := 0; i < s.Len(); i++ {
		positives = append(positives, s.Positive(i))
	}
	assert.Equal(t, []bool{true, false, true, false, true, false}, positives)

	_, err := s.Floats()
	assert.Error(t, err)

	keys, groups := NewSeries("g", []string{"M", "F", "M"}).Groups()
	assert.Equal(t, []string{"M", "F"}, keys)
	assert.Equal(t, []int{0, 2}, groups["M"])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(NewSeries("a", []string{"1"}), NewSeries("a", []string{"2"}))
	assert.Error(t, err)

	_, err = New(NewSeries("a", []string{"1"}), NewFloatSeries("b", []float64{1, 2}))
	assert.Error(t, err)

	var nilFrame *Frame
	assert.Equal(t, 0, nilFrame.Len())
	assert.False(t, nilFrame.Has("a"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0644))

	f, err := LoadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())

	_, err = LoadFile(filepath.Join(dir, "data.parquet"))
	assert.Error(t, err)
}
