// Package compliance evaluates policy controls against data.
//
// An Evaluator binds each control's roles to dataset columns, runs the
// registered metric and compares the value with the control's threshold:
//
//	e := compliance.NewEvaluator(compliance.WithLogger(logger))
//	results, err := e.ComputeAndEvaluate(ctx, pol, frame,
//		map[string]string{"target": "y", "prediction": "pred"}, false)
//
// Evaluate does the same comparison for metric values computed elsewhere.
//
// Controls that cannot be evaluated are omitted from the results. In strict
// mode a missing metric, an unbound role or an expected metric skip is
// returned as an error instead; unexpected metric failures are always
// skipped.
package compliance
