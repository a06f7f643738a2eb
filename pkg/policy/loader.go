package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/config"
)

// Format identifies the encoding of a policy document.
type Format string

const (
	// FormatYAML covers .yaml and .yml files.
	FormatYAML Format = "yaml"

	// FormatJSON covers .json files.
	FormatJSON Format = "json"

	// FormatCUE covers .cue files, evaluated to a concrete value before parsing.
	FormatCUE Format = "cue"
)

// FormatForPath returns the format implied by a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".cue":
		return FormatCUE, true
	default:
		return "", false
	}
}

// Source is either a file path or an already-decoded document.
type Source struct {
	Path     string
	Document any
}

// FromPath returns a Source reading the file at path.
func FromPath(path string) Source {
	return Source{Path: path}
}

// FromDocument returns a Source wrapping an in-memory document, such as a
// map[string]any or []any built by the caller.
func FromDocument(doc any) Source {
	return Source{Document: doc}
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	policy  *Policy
}

// Loader turns policy documents into normalized policies.
type Loader struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cacheEntry),
	}
}

// Load normalizes a policy from src.
func (l *Loader) Load(ctx context.Context, src Source) (*Policy, error) {
	if src.Path != "" {
		return l.LoadFile(ctx, src.Path)
	}
	return l.LoadDocument(ctx, src.Document)
}

// LoadFile reads and normalizes the policy file at path. A missing file is a
// *NotFoundError.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	l.mu.RLock()
	entry, cached := l.cache[path]
	l.mu.RUnlock()
	if cached && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		return clonePolicy(entry.policy), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	format, ok := FormatForPath(path)
	if !ok {
		format = FormatYAML
	}

	raw, node, err := decode(data, format, path)
	if err != nil {
		return nil, &FormatError{Source: path, Message: "failed to decode document", Err: err}
	}

	base := filepath.Base(path)
	n := &normalizer{
		logger: l.logger,
		source: path,
		stem:   strings.TrimSuffix(base, filepath.Ext(base)),
		node:   node,
	}
	policy, err := l.normalize(n, raw)
	if err != nil {
		return nil, err
	}
	policy.Source = path

	l.mu.Lock()
	l.cache[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), policy: clonePolicy(policy)}
	l.mu.Unlock()

	l.logger.Info().
		Str("path", path).
		Str("title", policy.Title).
		Int("controls", len(policy.Controls)).
		Msg("Policy loaded")

	return policy, nil
}

// LoadDocument normalizes an in-memory document. Mapping keys of Go maps have
// no order, so flat-list input mappings are read in key order.
func (l *Loader) LoadDocument(ctx context.Context, doc any) (*Policy, error) {
	return l.loadDocument(ctx, &normalizer{logger: l.logger, source: "<document>"}, doc)
}

func (l *Loader) loadDocument(ctx context.Context, n *normalizer, doc any) (*Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	policy, err := l.normalize(n, doc)
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("title", policy.Title).
		Int("controls", len(policy.Controls)).
		Msg("Policy loaded from document")

	return policy, nil
}

// LoadBytes decodes data in the given format and normalizes it.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, format Format) (*Policy, error) {
	raw, node, err := decode(data, format, "policy."+string(format))
	if err != nil {
		return nil, &FormatError{Source: "<bytes>", Message: "failed to decode document", Err: err}
	}
	return l.loadDocument(ctx, &normalizer{logger: l.logger, source: "<bytes>", node: node}, raw)
}

func (l *Loader) normalize(n *normalizer, raw any) (*Policy, error) {
	doc, err := Detect(raw)
	if err != nil {
		var ferr *FormatError
		if errors.As(err, &ferr) && ferr.Source == "" {
			ferr.Source = n.source
		}
		return nil, err
	}
	return n.normalize(doc)
}

// decode parses data into plain Go values. YAML documents also return their
// node tree, which keeps mapping key order.
func decode(data []byte, format Format, filename string) (any, *yaml.Node, error) {
	var (
		raw  any
		node *yaml.Node
	)
	switch format {
	case FormatJSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return map[string]any{}, nil, nil
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil, err
		}
	case FormatCUE:
		v, err := config.DecodeCUE(data, filename)
		if err != nil {
			return nil, nil, err
		}
		raw = v
	case FormatYAML, "":
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, err
		}
		if err := doc.Decode(&raw); err != nil {
			return nil, nil, err
		}
		node = &doc
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", format)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, node, nil
}

// LoadFromPaths loads policies from a list of file or directory paths.
// Directories are walked recursively for policy files; files inside a
// directory that fail to load are logged and skipped.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]*Policy, error) {
	var all []*Policy

	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Info().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]*Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []*Policy{policy}, nil
}

func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]*Policy, error) {
	var policies []*Policy

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatForPath(path); !ok {
			return nil
		}

		policy, err := l.LoadFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load policy file")
			return nil
		}

		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return policies, nil
}

// Watch starts watching paths for policy changes and calls reloadFn with the
// freshly loaded policies after a burst of writes settles.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]*Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return watcher.Add(p)
				}
				return nil
			})
		} else {
			// Editors often replace files on save, so watch the parent.
			err = watcher.Add(filepath.Dir(path))
		}
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
	}

	l.watchMu.Lock()
	l.watcher = watcher
	l.watchMu.Unlock()

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching policy paths")

	return nil
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reloadFn func([]*Policy) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	// Covers every exit, including StopWatching closing the channels.
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, ok := FormatForPath(event.Name); !ok {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if !l.isWatching(watcher) {
					return
				}
				if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// isWatching reports whether watcher is still the active one. A timer that
// fires after StopWatching or a newer Watch must not reload.
func (l *Loader) isWatching(watcher *fsnotify.Watcher) bool {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	return l.watcher == watcher
}

func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]*Policy) error) error {
	l.logger.Info().Msg("Reloading policies...")

	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}

	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}

	l.logger.Info().
		Int("count", len(policies)).
		Msg("Policies reloaded successfully")

	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

// ClearCache drops every cached policy.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]cacheEntry)
	l.logger.Debug().Msg("Policy cache cleared")
}

func clonePolicy(p *Policy) *Policy {
	out := *p
	out.Controls = make([]Control, len(p.Controls))
	for i, c := range p.Controls {
		c.RequiredVars = append([]string(nil), c.RequiredVars...)
		c.InputMapping = NewProps(c.InputMapping.Items()...)
		c.Params = NewProps(c.Params.Items()...)
		out.Controls[i] = c
	}
	return &out
}
