package enforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
)

// ResultSink persists the results of one policy within a session.
type ResultSink interface {
	SaveResults(ctx context.Context, sessionID, policy string, results []compliance.ComplianceResult) error
}

// DefaultResultsFile is where FileSink caches results by default.
const DefaultResultsFile = ".venturalitica/results.json"

// FileSink appends results to a JSON array on disk.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultResultsFile
	}
	return &FileSink{path: path}
}

// Path returns the results file path.
func (f *FileSink) Path() string {
	return f.path
}

// SaveResults appends results to the file, creating it if needed.
func (f *FileSink) SaveResults(_ context.Context, _ string, _ string, results []compliance.ComplianceResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := ReadResultsFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	combined := append(existing, results...)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// ReadResultsFile reads a JSON results file. Besides a plain array it accepts
// an object holding the array under "results", "metrics" or "post_metrics".
func ReadResultsFile(path string) ([]compliance.ComplianceResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var results []compliance.ComplianceResult
	if err := json.Unmarshal(data, &results); err == nil {
		return results, nil
	}

	var bundle map[string]json.RawMessage
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode results file %s: %w", path, err)
	}
	for _, key := range []string{"results", "metrics", "post_metrics"} {
		raw, ok := bundle[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("failed to decode %q in %s: %w", key, path, err)
		}
		return results, nil
	}
	return nil, fmt.Errorf("results file %s holds no result list", path)
}
