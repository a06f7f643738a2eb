// Package enforce runs policies against a model's data or metrics for an
// explicit Session and hands the results to sinks such as the evidence store.
//
//	session := enforce.NewSession("credit-model")
//	results, err := enforcer.Enforce(ctx, session, enforce.Request{
//		Policies:   []string{"risks.oscal.yaml"},
//		Data:       frame,
//		Attributes: map[string]string{"dimension": "sex"},
//	})
package enforce
