package metrics

import (
	"context"
	"testing"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// credit is a small scored dataset split into two groups:
//
//	y    1 1 0 0 1 0
//	pred 1 0 0 1 1 0
//	sex  A A A B B B
func credit() *dataset.Frame {
	return dataset.MustNew(
		dataset.NewSeries("y", []string{"1", "1", "0", "0", "1", "0"}),
		dataset.NewSeries("pred", []string{"1", "0", "0", "1", "1", "0"}),
		dataset.NewSeries("sex", []string{"A", "A", "A", "B", "B", "B"}),
	)
}

func bound(params map[string]any) Roles {
	roles := NewRoles()
	roles.SetColumn(RoleTarget, "y")
	roles.SetColumn(RolePrediction, "pred")
	roles.SetColumn(RoleDimension, "sex")
	for k, v := range params {
		roles.SetParam(k, v)
	}
	return roles
}

func compute(t *testing.T, key string, data *dataset.Frame, roles Roles) (Value, error) {
	t.Helper()
	fn, ok := Default().Lookup(key)
	require.True(t, ok, "metric %s not registered", key)
	return fn.Compute(context.Background(), data, roles)
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		key    string
		params map[string]any
		want   float64
	}{
		{key: KeyAccuracy, want: 4.0 / 6.0},
		{key: KeyPrecision, want: 2.0 / 3.0},
		{key: KeyRecall, want: 2.0 / 3.0},
		{key: KeyF1, want: 2.0 / 3.0},
		{key: KeyPrecision, params: map[string]any{ParamAverage: "macro"}, want: 2.0 / 3.0},
		{key: KeyDemographicParity, want: 1.0 / 3.0},
		{key: KeyEqualOpportunity, want: 0.5},
		{key: KeyEqualizedOdds, want: 1.0},
		{key: KeyPredictiveParity, want: 0.5},
		{key: KeyClassImbalance, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, err := compute(t, tt.key, credit(), bound(tt.params))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v.Number, 1e-9)
		})
	}
}

func TestAccuracy_PerfectScore(t *testing.T) {
	data := dataset.MustNew(
		dataset.NewSeries("target", []string{"1", "0", "1.0"}),
		dataset.NewSeries("prediction", []string{"1", "0", "1"}),
	)
	roles := NewRoles()
	roles.SetColumn(RoleTarget, "target")
	roles.SetColumn(RolePrediction, "prediction")

	v, err := compute(t, KeyAccuracy, data, roles)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Number)
}

func TestAverage_Unsupported(t *testing.T) {
	_, err := compute(t, KeyF1, credit(), bound(map[string]any{ParamAverage: "weighted"}))
	assert.True(t, IsSkip(err))
}

func TestMean(t *testing.T) {
	data := dataset.MustNew(dataset.NewFloatSeries("score", []float64{0.2, 0.4, 0.9}))
	roles := NewRoles()
	roles.SetColumn(RoleTarget, "score")

	v, err := compute(t, KeyMean, data, roles)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.Number, 1e-9)

	text := dataset.MustNew(dataset.NewSeries("score", []string{"high"}))
	_, err = compute(t, KeyMean, text, roles)
	assert.True(t, IsSkip(err))
}

func TestDisparateImpact(t *testing.T) {
	group := []string{"A", "A", "A", "A", "A", "B", "B", "B", "B", "B", "C", "C"}
	pred := []string{"1", "1", "1", "1", "0", "1", "1", "0", "0", "0", "0", "0"}
	data := dataset.MustNew(
		dataset.NewSeries("pred", pred),
		dataset.NewSeries("sex", group),
	)

	roles := NewRoles()
	roles.SetColumn(RolePrediction, "pred")
	roles.SetColumn(RoleTarget, "MISSING")
	roles.SetColumn(RoleDimension, "sex")

	v, err := compute(t, KeyDisparateImpact, data, roles)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.Number, 1e-9, "group C has too few rows and is ignored")

	t.Run("falls back to target", func(t *testing.T) {
		r := NewRoles()
		r.SetColumn(RoleTarget, "pred")
		r.SetColumn(RoleDimension, "sex")
		v, err := compute(t, KeyDisparateImpact, data, r)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, v.Number, 1e-9)
	})

	t.Run("too few groups", func(t *testing.T) {
		v, err := compute(t, KeyDisparateImpact, credit(), bound(nil))
		require.NoError(t, err)
		assert.Equal(t, 1.0, v.Number)
	})
}

func TestClassImbalance(t *testing.T) {
	data := dataset.MustNew(dataset.NewSeries("y", []string{"1", "0", "0", "0"}))
	roles := NewRoles()
	roles.SetColumn(RoleTarget, "y")

	v, err := compute(t, KeyClassImbalance, data, roles)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, v.Number, 1e-9)

	single := dataset.MustNew(dataset.NewSeries("y", []string{"1", "1"}))
	v, err = compute(t, KeyClassImbalance, single, roles)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Number)
}

func TestKAnonymity(t *testing.T) {
	data := dataset.MustNew(
		dataset.NewSeries("age", []string{"25", "25", "30", "30", "30"}),
		dataset.NewSeries("zip", []string{"10001", "10001", "10002", "10002", "10002"}),
	)

	roles := NewRoles()
	roles.SetParam(ParamQuasiIdentifiers, []string{"age", "zip"})
	v, err := compute(t, KeyKAnonymity, data, roles)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Number)

	roles.SetParam(ParamQuasiIdentifiers, "age, postcode")
	_, err = compute(t, KeyKAnonymity, data, roles)
	assert.True(t, IsSkip(err))

	_, err = compute(t, KeyKAnonymity, data, NewRoles())
	assert.True(t, IsSkip(err))
}

func TestBuiltins_MissingRoles(t *testing.T) {
	keys := []string{
		KeyAccuracy, KeyPrecision, KeyRecall, KeyF1, KeyMean,
		KeyDemographicParity, KeyEqualOpportunity, KeyEqualizedOdds,
		KeyPredictiveParity, KeyDisparateImpact, KeyClassImbalance,
	}

	for _, key := range keys {
		t.Run(key+"/unbound", func(t *testing.T) {
			_, err := compute(t, key, credit(), NewRoles())
			assert.True(t, IsSkip(err), "got %v", err)
		})

		t.Run(key+"/absent column", func(t *testing.T) {
			roles := NewRoles()
			for _, role := range []string{RoleTarget, RolePrediction, RoleDimension} {
				roles.SetColumn(role, "nope")
			}
			_, err := compute(t, key, credit(), roles)
			assert.True(t, IsSkip(err), "got %v", err)
		})
	}
}

func TestBuiltins_DoNotModifyInput(t *testing.T) {
	data := credit()
	before := make(map[string][]string)
	for _, name := range data.Columns() {
		s, _ := data.Column(name)
		before[name] = s.Strings()
	}

	for _, key := range Default().Keys() {
		_, _ = compute(t, key, data, bound(map[string]any{ParamQuasiIdentifiers: "sex"}))
	}

	for _, name := range data.Columns() {
		s, _ := data.Column(name)
		assert.Equal(t, before[name], s.Strings())
	}
}
