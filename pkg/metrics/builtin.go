package metrics

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
)

// Built-in metric keys.
const (
	KeyAccuracy          = "accuracy_score"
	KeyPrecision         = "precision_score"
	KeyRecall            = "recall_score"
	KeyF1                = "f1_score"
	KeyMean              = "mean_score"
	KeyDemographicParity = "demographic_parity_diff"
	KeyEqualOpportunity  = "equal_opportunity_diff"
	KeyEqualizedOdds     = "equalized_odds_ratio"
	KeyPredictiveParity  = "predictive_parity"
	KeyDisparateImpact   = "disparate_impact"
	KeyClassImbalance    = "class_imbalance"
	KeyKAnonymity        = "k_anonymity"
)

// Roles and parameters read by the built-ins.
const (
	RoleTarget     = "target"
	RolePrediction = "prediction"
	RoleDimension  = "dimension"

	ParamAverage          = "average"
	ParamQuasiIdentifiers = "quasi_identifiers"
	ParamSensitiveColumns = "sensitive_columns"
)

const (
	minDisparateGroupSize = 5
	averageBinary         = "binary"
	averageMacro          = "macro"
)

// RegisterBuiltins adds every built-in metric to r.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(KeyAccuracy, Func(accuracy))
	r.MustRegister(KeyPrecision, Func(precision))
	r.MustRegister(KeyRecall, Func(recall))
	r.MustRegister(KeyF1, Func(f1))
	r.MustRegister(KeyMean, Func(mean))
	r.MustRegister(KeyDemographicParity, Func(demographicParity))
	r.MustRegister(KeyEqualOpportunity, Func(equalOpportunity))
	r.MustRegister(KeyEqualizedOdds, Func(equalizedOdds))
	r.MustRegister(KeyPredictiveParity, Func(predictiveParity))
	r.MustRegister(KeyDisparateImpact, Func(disparateImpact))
	r.MustRegister(KeyClassImbalance, Func(classImbalance))
	r.MustRegister(KeyKAnonymity, Func(kAnonymity))
}

// labelKey normalizes a label so that "1", "1.0" and " 1" compare equal.
func labelKey(raw string) string {
	t := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.ToLower(t)
}

func targetAndPrediction(data *dataset.Frame, roles Roles) (*dataset.Series, *dataset.Series, error) {
	cols, err := columns(data, roles, RoleTarget, RolePrediction)
	if err != nil {
		return nil, nil, err
	}
	if cols[0].Len() == 0 {
		return nil, nil, Skip("no rows to evaluate")
	}
	return cols[0], cols[1], nil
}

func accuracy(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	target, pred, err := targetAndPrediction(data, roles)
	if err != nil {
		return Value{}, err
	}
	correct := 0
	for i := 0; i < target.Len(); i++ {
		if labelKey(target.At(i)) == labelKey(pred.At(i)) {
			correct++
		}
	}
	return Value{Number: float64(correct) / float64(target.Len())}, nil
}

// confusion holds binary confusion counts.
type confusion struct {
	tp, fp, fn, tn int
}

func binaryConfusion(target, pred *dataset.Series, rows []int) confusion {
	var c confusion
	each := func(i int) {
		t, p := target.Positive(i), pred.Positive(i)
		switch {
		case t && p:
			c.tp++
		case !t && p:
			c.fp++
		case t && !p:
			c.fn++
		default:
			c.tn++
		}
	}
	if rows == nil {
		for i := 0; i < target.Len(); i++ {
			each(i)
		}
	} else {
		for _, i := range rows {
			each(i)
		}
	}
	return c
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c confusion) precision() float64 { return ratio(c.tp, c.tp+c.fp) }
func (c confusion) recall() float64    { return ratio(c.tp, c.tp+c.fn) }

func (c confusion) f1() float64 {
	return ratio(2*c.tp, 2*c.tp+c.fp+c.fn)
}

// classScores computes per-class one-vs-rest confusion for macro averaging.
func classScores(target, pred *dataset.Series) (classes []string, scores map[string]confusion) {
	seen := make(map[string]bool)
	scores = make(map[string]confusion)
	addClass := func(k string) {
		if !seen[k] {
			seen[k] = true
			classes = append(classes, k)
		}
	}
	for i := 0; i < target.Len(); i++ {
		addClass(labelKey(target.At(i)))
		addClass(labelKey(pred.At(i)))
	}
	for _, class := range classes {
		var c confusion
		for i := 0; i < target.Len(); i++ {
			t := labelKey(target.At(i)) == class
			p := labelKey(pred.At(i)) == class
			switch {
			case t && p:
				c.tp++
			case !t && p:
				c.fp++
			case t && !p:
				c.fn++
			default:
				c.tn++
			}
		}
		scores[class] = c
	}
	return classes, scores
}

func averaged(data *dataset.Frame, roles Roles, score func(confusion) float64) (Value, error) {
	target, pred, err := targetAndPrediction(data, roles)
	if err != nil {
		return Value{}, err
	}

	switch avg := roles.ParamString(ParamAverage, averageBinary); avg {
	case averageBinary:
		return Value{
			Number:   score(binaryConfusion(target, pred, nil)),
			Metadata: map[string]any{"average": averageBinary},
		}, nil
	case averageMacro:
		classes, scores := classScores(target, pred)
		perClass := make(map[string]any, len(classes))
		sum := 0.0
		for _, class := range classes {
			v := score(scores[class])
			perClass[class] = v
			sum += v
		}
		return Value{
			Number:   sum / float64(len(classes)),
			Metadata: map[string]any{"average": averageMacro, "per_class": perClass},
		}, nil
	default:
		return Value{}, Skip("unsupported average %q", avg)
	}
}

func precision(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	return averaged(data, roles, confusion.precision)
}

func recall(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	return averaged(data, roles, confusion.recall)
}

func f1(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	return averaged(data, roles, confusion.f1)
}

func mean(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	cols, err := columns(data, roles, RoleTarget)
	if err != nil {
		return Value{}, err
	}
	values, err := cols[0].Floats()
	if err != nil {
		return Value{}, Skip("%v", err)
	}
	if len(values) == 0 {
		return Value{}, Skip("no rows to evaluate")
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return Value{Number: sum / float64(len(values))}, nil
}

// groupedColumns returns target, prediction and dimension series.
func groupedColumns(data *dataset.Frame, roles Roles) (target, pred, dim *dataset.Series, err error) {
	cols, err := columns(data, roles, RoleTarget, RolePrediction, RoleDimension)
	if err != nil {
		return nil, nil, nil, err
	}
	return cols[0], cols[1], cols[2], nil
}

// spread returns max - min over per-group rates and the rates as metadata.
func spread(rates map[string]float64, order []string) (float64, map[string]any) {
	lo, hi := math.Inf(1), math.Inf(-1)
	meta := make(map[string]any, len(rates))
	for _, g := range order {
		r, ok := rates[g]
		if !ok {
			continue
		}
		meta[g] = r
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	return hi - lo, meta
}

func demographicParity(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	_, pred, dim, err := groupedColumns(data, roles)
	if err != nil {
		return Value{}, err
	}
	keys, groups := dim.Groups()
	if len(keys) == 0 {
		return Value{}, Skip("no groups found in dimension %q", dim.Name)
	}
	rates := make(map[string]float64, len(keys))
	for _, g := range keys {
		positive := 0
		for _, i := range groups[g] {
			if pred.Positive(i) {
				positive++
			}
		}
		rates[g] = ratio(positive, len(groups[g]))
	}
	diff, meta := spread(rates, keys)
	return Value{Number: diff, Metadata: map[string]any{"group_rates": meta}}, nil
}

func equalOpportunity(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	target, pred, dim, err := groupedColumns(data, roles)
	if err != nil {
		return Value{}, err
	}
	keys, groups := dim.Groups()
	tprs := make(map[string]float64)
	for _, g := range keys {
		c := binaryConfusion(target, pred, groups[g])
		if c.tp+c.fn > 0 {
			tprs[g] = c.recall()
		}
	}
	if len(tprs) == 0 {
		return Value{}, Skip("no positive samples in any group of %q", dim.Name)
	}
	diff, meta := spread(tprs, keys)
	return Value{Number: diff, Metadata: map[string]any{"group_tpr": meta}}, nil
}

func equalizedOdds(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	target, pred, dim, err := groupedColumns(data, roles)
	if err != nil {
		return Value{}, err
	}
	keys, groups := dim.Groups()
	tprs := make(map[string]float64)
	fprs := make(map[string]float64)
	for _, g := range keys {
		c := binaryConfusion(target, pred, groups[g])
		if c.tp+c.fn > 0 {
			tprs[g] = c.recall()
		}
		if c.fp+c.tn > 0 {
			fprs[g] = ratio(c.fp, c.fp+c.tn)
		}
	}
	if len(tprs) == 0 || len(fprs) == 0 {
		return Value{}, Skip("insufficient positive or negative samples for equalized odds")
	}
	tprDiff, tprMeta := spread(tprs, keys)
	fprDiff, fprMeta := spread(fprs, keys)
	return Value{
		Number: tprDiff + fprDiff,
		Metadata: map[string]any{
			"tpr_diff":  tprDiff,
			"fpr_diff":  fprDiff,
			"group_tpr": tprMeta,
			"group_fpr": fprMeta,
		},
	}, nil
}

func predictiveParity(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	target, pred, dim, err := groupedColumns(data, roles)
	if err != nil {
		return Value{}, err
	}
	keys, groups := dim.Groups()
	precisions := make(map[string]float64)
	for _, g := range keys {
		c := binaryConfusion(target, pred, groups[g])
		if c.tp+c.fp > 0 {
			precisions[g] = c.precision()
		}
	}
	if len(precisions) == 0 {
		return Value{}, Skip("no positive predictions in any group of %q", dim.Name)
	}
	diff, meta := spread(precisions, keys)
	return Value{Number: diff, Metadata: map[string]any{"group_precision": meta}}, nil
}

// disparateImpact is the min/max ratio of positive outcome rates across groups
// with at least five rows. The prediction is the outcome when bound, else the
// target.
func disparateImpact(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	outcomeRole := RolePrediction
	if !roles.Has(RolePrediction) {
		outcomeRole = RoleTarget
	}
	cols, err := columns(data, roles, outcomeRole, RoleDimension)
	if err != nil {
		return Value{}, err
	}
	outcome, dim := cols[0], cols[1]

	keys, groups := dim.Groups()
	var valid []string
	for _, g := range keys {
		if len(groups[g]) >= minDisparateGroupSize {
			valid = append(valid, g)
		}
	}
	meta := map[string]any{"outcome": outcome.Name}
	if len(valid) < 2 {
		meta["reason"] = "fewer than two groups with enough samples"
		return Value{Number: 1.0, Metadata: meta}, nil
	}

	rates := make(map[string]float64, len(valid))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, g := range valid {
		positive := 0
		for _, i := range groups[g] {
			if outcome.Positive(i) {
				positive++
			}
		}
		r := ratio(positive, len(groups[g]))
		rates[g] = r
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	_, groupMeta := spread(rates, valid)
	meta["group_rates"] = groupMeta
	if hi == 0 {
		return Value{Number: 1.0, Metadata: meta}, nil
	}
	return Value{Number: lo / hi, Metadata: meta}, nil
}

func classImbalance(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	cols, err := columns(data, roles, RoleTarget)
	if err != nil {
		return Value{}, err
	}
	keys, groups := cols[0].Groups()
	if len(keys) < 2 {
		return Value{Number: 0}, nil
	}
	lo, hi := math.MaxInt, 0
	counts := make(map[string]any, len(keys))
	for _, k := range keys {
		n := len(groups[k])
		counts[k] = n
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return Value{Number: ratio(lo, hi), Metadata: map[string]any{"class_counts": counts}}, nil
}

// kAnonymity is the smallest number of rows sharing one combination of
// quasi-identifier values.
func kAnonymity(_ context.Context, data *dataset.Frame, roles Roles) (Value, error) {
	qis := roles.ParamStrings(ParamQuasiIdentifiers)
	if len(qis) == 0 {
		return Value{}, Skip("quasi_identifiers required for k-anonymity")
	}
	series := make([]*dataset.Series, 0, len(qis))
	var absent []string
	for _, name := range qis {
		s, ok := data.Column(name)
		if !ok {
			absent = append(absent, name)
			continue
		}
		series = append(series, s)
	}
	if len(absent) > 0 {
		return Value{}, Skip("quasi-identifier columns not found: %s", strings.Join(absent, ", "))
	}

	sizes := make(map[string]int)
	parts := make([]string, len(series))
	for i := 0; i < data.Len(); i++ {
		for c, s := range series {
			parts[c] = s.At(i)
		}
		sizes[strings.Join(parts, "\x1f")]++
	}
	if len(sizes) == 0 {
		return Value{Number: 0}, nil
	}
	k := math.MaxInt
	for _, n := range sizes {
		if n < k {
			k = n
		}
	}
	return Value{
		Number:   float64(k),
		Metadata: map[string]any{"quasi_identifiers": qis, "equivalence_classes": len(sizes)},
	}, nil
}
