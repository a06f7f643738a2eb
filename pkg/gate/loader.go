package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Loader reads gate definitions from disk. A .rego file becomes a gate named
// after the file; a .json file holds a full Gate definition.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a gate loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFromPaths loads gates from files and directories.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Gate, error) {
	var gates []Gate
	for _, path := range paths {
		loaded, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from %s: %w", path, err)
		}
		gates = append(gates, loaded...)
	}
	return gates, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Gate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	g, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Gate{*g}, nil
}

func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Gate, error) {
	var gates []Gate

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Rego test files are not gates.
		if strings.HasSuffix(path, "_test.rego") {
			return nil
		}
		if !strings.HasSuffix(path, ".rego") && !strings.HasSuffix(path, ".json") {
			return nil
		}

		g, err := l.loadFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load gate file")
			return nil
		}
		gates = append(gates, *g)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return gates, nil
}

func (l *Loader) loadFromFile(filePath string) (*Gate, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var g *Gate
	switch {
	case strings.HasSuffix(filePath, ".rego"):
		g = parseRegoFile(filePath, data)
	case strings.HasSuffix(filePath, ".json"):
		g, err = parseJSONFile(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}
	g.Source = filePath

	l.logger.Debug().
		Str("path", filePath).
		Str("gate", g.Name).
		Msg("Gate loaded from file")

	return g, nil
}

func parseRegoFile(filePath string, data []byte) *Gate {
	name := strings.TrimSuffix(filepath.Base(filePath), ".rego")
	return &Gate{
		Name:        name,
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityError,
		Enabled:     true,
	}
}

func parseJSONFile(data []byte) (*Gate, error) {
	g := Gate{Enabled: true}
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse JSON gate: %w", err)
	}
	if g.Name == "" {
		return nil, fmt.Errorf("JSON gate has no name")
	}
	if g.Severity == "" {
		g.Severity = SeverityError
	}
	return &g, nil
}

// extractDescription returns the leading comment block of a Rego module.
func extractDescription(content string) string {
	var description strings.Builder

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if description.Len() > 0 {
					description.WriteString(" ")
				}
				description.WriteString(comment)
			}
		} else if trimmed != "" {
			break
		}
	}

	return description.String()
}
