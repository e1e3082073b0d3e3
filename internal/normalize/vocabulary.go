package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultFocusSlots is the canonical focus-slot list used when no
// vocabulary file is configured.
var DefaultFocusSlots = []string{
	"Morning Routine",
	"Deep Work Block 1",
	"Deep Work Block 2",
	"Admin Block",
	"Creative Block",
	"Learning Block",
	"Evening Review",
}

// Vocabulary is the configurable part of the canonical value sets.
//
// Status and priority sets are fixed by the task table constraints; the
// focus-slot list changes with the planning template and lives in a file.
type Vocabulary struct {
	FocusSlots []string `toml:"focus_slots" yaml:"focus_slots"`
}

// DefaultVocabulary returns a copy of the built-in vocabulary.
func DefaultVocabulary() *Vocabulary {
	slots := make([]string, len(DefaultFocusSlots))
	copy(slots, DefaultFocusSlots)
	return &Vocabulary{FocusSlots: slots}
}

// Validate rejects empty or duplicate slot names.
func (v *Vocabulary) Validate() error {
	if len(v.FocusSlots) == 0 {
		return fmt.Errorf("focus_slots must not be empty")
	}
	seen := make(map[string]bool, len(v.FocusSlots))
	for _, s := range v.FocusSlots {
		f := fold(s)
		if f == "" {
			return fmt.Errorf("focus_slots contains an empty name")
		}
		if seen[f] {
			return fmt.Errorf("focus_slots contains duplicate %q", s)
		}
		seen[f] = true
	}
	return nil
}

// LoadVocabulary reads a vocabulary file. The format follows the extension:
// .toml, or .yaml/.yml.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
	}

	var v Vocabulary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &v); err != nil {
			return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported vocabulary file extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}

	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vocabulary file %s: %w", path, err)
	}
	return &v, nil
}

// Catalog holds the current vocabulary and allows it to be swapped while
// a long-running loop keeps using it.
type Catalog struct {
	v atomic.Pointer[Vocabulary]
}

// NewCatalog returns a catalog seeded with v (or the default vocabulary).
func NewCatalog(v *Vocabulary) *Catalog {
	if v == nil {
		v = DefaultVocabulary()
	}
	c := &Catalog{}
	c.v.Store(v)
	return c
}

// FocusSlots returns the current canonical focus-slot list.
func (c *Catalog) FocusSlots() []string {
	return c.v.Load().FocusSlots
}

// Replace swaps in a new vocabulary.
func (c *Catalog) Replace(v *Vocabulary) {
	c.v.Store(v)
}

// Watch reloads path into c whenever it is written or recreated, until ctx
// is done. It blocks; a file that fails to parse leaves the previous
// vocabulary in place and is logged.
func (c *Catalog) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	w, err := c.NewWatcher(path, logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Watcher reloads one vocabulary file into a Catalog.
type Watcher struct {
	catalog *Catalog
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
}

// NewWatcher starts watching path. Changes made after it returns are
// picked up once Run is called.
//
// The parent directory is watched rather than the file so that editors
// which save via rename are picked up.
func (c *Catalog) NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve vocabulary path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{catalog: c, watcher: watcher, path: abs, logger: logger}, nil
}

// Run handles file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			v, err := LoadVocabulary(w.path)
			if err != nil {
				w.logger.Warn("vocabulary reload failed, keeping previous list", "path", w.path, "error", err)
				continue
			}
			w.catalog.Replace(v)
			w.logger.Info("vocabulary reloaded", "path", w.path, "focus_slots", len(v.FocusSlots))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("vocabulary watcher error", "error", err)
		}
	}
}
