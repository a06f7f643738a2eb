package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// ValidationError is a CUE diagnostic with its source position.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Message)
	return b.String()
}

// CUEError collects the diagnostics of a failed compilation or validation.
type CUEError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *CUEError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.String()
	}
	return strings.Join(msgs, "; ")
}

// cue.Context is not safe for concurrent use.
var (
	cueMu  sync.Mutex
	cueCtx = cuecontext.New()
)

// DecodeCUE compiles a CUE document, requires it to be concrete and returns it
// as plain Go values (map[string]any, []any, string, float64, bool).
func DecodeCUE(src []byte, filename string) (any, error) {
	cueMu.Lock()
	defer cueMu.Unlock()

	val := cueCtx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, &CUEError{Errors: convertCUEErrors(err)}
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, &CUEError{Errors: convertCUEErrors(err)}
	}

	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE value: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode exported CUE value: %w", err)
	}
	return out, nil
}

func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		})
	}

	return validationErrors
}
