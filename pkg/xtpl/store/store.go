// Package store keeps a directory of compiled templates and, optionally,
// recompiles them as the files change.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/benjaminschreck/go-xtpl/pkg/xtpl"
)

// DefaultExtension is the file extension templates are loaded from
const DefaultExtension = ".xtpl"

// ErrNotFound is returned for template names the store does not hold
var ErrNotFound = errors.New("template not found")

// Store holds the compiled templates of one directory tree, keyed by their
// slash separated path relative to the root without the extension.
type Store struct {
	dir      string
	ext      string
	opts     []xtpl.Option
	logger   *zap.Logger
	onChange func(name string, err error)

	mu        sync.RWMutex
	templates map[string]*xtpl.Template

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithExtension loads files with ext instead of DefaultExtension
func WithExtension(ext string) Option {
	return func(s *Store) {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.ext = ext
	}
}

// WithCompileOptions passes opts to every Compile call
func WithCompileOptions(opts ...xtpl.Option) Option {
	return func(s *Store) { s.opts = append(s.opts, opts...) }
}

// WithLogger sets the logger for load and watch events
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithOnChange registers fn to run after the watcher reloads or drops a
// template. err is the compile error when a reload failed.
func WithOnChange(fn func(name string, err error)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New loads and compiles every template under dir. All compile failures are
// reported together.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		ext:       DefaultExtension,
		templates: make(map[string]*xtpl.Template),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = xtpl.GetLogger()
	}
	s.logger = s.logger.With(zap.String("dir", dir))

	info, err := os.Stat(dir)
	if err != nil {
		return nil, xtpl.WithContext(err, "open template store", map[string]interface{}{"dir": dir})
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	errs := xtpl.NewMultiError()
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.matches(path) {
			return nil
		}
		if _, err := s.load(path); err != nil {
			errs.Add(err)
		}
		return nil
	})
	if err != nil {
		return nil, xtpl.WithContext(err, "walk template store", map[string]interface{}{"dir": dir})
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("loaded templates", zap.Int("count", len(s.templates)))
	return s, nil
}

func (s *Store) matches(path string) bool {
	return filepath.Ext(path) == s.ext
}

// nameFor maps a file path to its template name
func (s *Store) nameFor(path string) (string, error) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, s.ext)), nil
}

// load compiles path and stores it under its name. A failed compile leaves
// any previously stored template in place.
func (s *Store) load(path string) (string, error) {
	name, err := s.nameFor(path)
	if err != nil {
		return "", err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return name, xtpl.WithContext(err, "read template", map[string]interface{}{"name": name})
	}
	tpl, err := xtpl.Compile(string(src), s.opts...)
	if err != nil {
		return name, xtpl.WithContext(err, "compile template", map[string]interface{}{"name": name})
	}

	s.mu.Lock()
	s.templates[name] = tpl
	s.mu.Unlock()

	s.logger.Debug("compiled template", zap.String("name", name), zap.Int("blocks", len(tpl.Blocks())))
	return name, nil
}

func (s *Store) drop(path string) (string, bool) {
	name, err := s.nameFor(path)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return name, false
	}
	delete(s.templates, name)
	return name, true
}

// Get returns the compiled template stored under name
func (s *Store) Get(name string) (*xtpl.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[name]
	return tpl, ok
}

// Render renders the template stored under name
func (s *Store) Render(name string, data interface{}) (string, error) {
	tpl, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return tpl.Render(data)
}

// Names lists the stored template names in sorted order
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch starts following the directory tree for changes. It returns once the
// watches are registered; events are handled in the background until ctx is
// done or Close is called. Calling Watch on a store that is already watching
// is a no-op.
func (s *Store) Watch(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return xtpl.WithContext(err, "create watcher", nil)
	}
	if err := addTree(watcher, s.dir); err != nil {
		watcher.Close()
		return xtpl.WithContext(err, "watch template store", map[string]interface{}{"dir": s.dir})
	}

	ctx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, watcher, s.done)

	s.logger.Info("watching templates")
	return nil
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (s *Store) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("template watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("template watcher error", zap.Error(err))
		}
	}
}

func (s *Store) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(watcher, event.Name); err != nil {
				s.logger.Warn("failed to watch directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
		if !s.matches(event.Name) {
			return
		}
		name, err := s.load(event.Name)
		if err != nil {
			s.logger.Error("template reload failed, keeping previous version",
				zap.String("name", name), zap.Error(err))
		} else {
			s.logger.Info("template reloaded", zap.String("name", name))
		}
		s.notify(name, err)

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if !s.matches(event.Name) {
			return
		}
		if name, ok := s.drop(event.Name); ok {
			s.logger.Info("template removed", zap.String("name", name))
			s.notify(name, nil)
		}
	}
}

func (s *Store) notify(name string, err error) {
	if s.onChange != nil {
		s.onChange(name, err)
	}
}

// Close stops the watcher, if any, and waits for it to exit
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.watcher = nil
	return nil
}
