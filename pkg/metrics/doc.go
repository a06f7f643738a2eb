// Package metrics defines the metric function contract, the registry that maps
// metric keys to implementations, and the built-in metrics.
//
// A metric receives the dataset and a Roles bag holding the column bound to
// each semantic role ("target", "prediction", "dimension") plus static
// parameters such as "average" or "quasi_identifiers":
//
//	reg := metrics.NewRegistry()
//	reg.MustRegister("positive_rate", metrics.Func(
//		func(ctx context.Context, data *dataset.Frame, roles metrics.Roles) (metrics.Value, error) {
//			col, ok := roles.Column("prediction")
//			if !ok {
//				return metrics.Value{}, metrics.Skip("prediction is not bound")
//			}
//			...
//		}))
//	reg.Freeze()
//
// Failures come in two classes. An expected skip (Skip) means the metric does
// not apply to the input; the evaluator skips the control, or fails in strict
// mode. Any other error, including a panic, is an unexpected failure that is
// logged and skipped in every mode.
package metrics
