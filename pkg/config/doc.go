// Package config holds the application configuration and the CUE helpers used
// to read policy documents written in CUE.
//
// # Configuration
//
// Load reads a YAML file on top of Default, applies environment overrides and
// validates the result twice: the raw document against the built-in CUE
// schema (unknown keys, wrong types) and the decoded struct with
// go-playground/validator (cross-field rules).
//
//	cfg, err := config.Load("venturalitica.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Environment overrides:
//
//   - VENTURALITICA_STRICT=true or CI=true enables strict mode
//   - VENTURALITICA_LOG_LEVEL sets the log level
//   - VENTURALITICA_STORE_PATH sets the evidence database path
//
// # CUE
//
// DecodeCUE compiles a CUE document, requires every value to be concrete and
// returns plain Go values, so a policy written in CUE goes through the same
// normalizer as its YAML equivalent. SchemaRegistry validates arbitrary data
// against named CUE definitions; the flat-control schema is used to explain
// why entries of a flat policy list were dropped.
package config
