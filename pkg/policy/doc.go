// Package policy loads governance policies and normalizes them into a single
// internal model.
//
// A Policy is a titled, ordered list of Controls. Each Control names a metric
// key, a threshold and a comparison operator, plus the role bindings the metric
// needs at evaluation time.
//
// # Dialects
//
// Documents are decoded from YAML, JSON or CUE and then classified by Detect:
//
//  1. A mapping containing assessment-plan, catalog, profile or
//     component-definition (checked in that order) is an OSCALDocument.
//  2. A bare list is a FlatDocument.
//  3. Anything else is a *FormatError.
//
// OSCAL roots are parsed permissively. Controls come from implemented
// requirements (either direct metric props or "#uuid" links into the
// inventory) and from catalog controls at any nesting depth. Props named
// "input:<role>" become InputMapping entries and "param:<name>" become Params.
//
// A minimal component definition:
//
//	component-definition:
//	  metadata:
//	    title: Credit Scoring Fairness
//	  control-implementations:
//	    - implemented-requirements:
//	        - control-id: acc-1
//	          props:
//	            - {name: metric_key, value: accuracy_score}
//	            - {name: threshold, value: "0.8"}
//	            - {name: operator, value: ">="}
//	            - {name: input:target, value: y}
//	            - {name: input:prediction, value: y_hat}
//
// # Loading
//
//	loader := policy.NewLoader(logger)
//	p, err := loader.LoadFile(ctx, "policies/fairness.yaml")
//	if errors.Is(err, policy.ErrNotFound) {
//	    // path does not exist
//	}
//
// Loaded files are cached by path, size and modification time. Watch reloads
// policies when files under the watched paths change.
package policy
