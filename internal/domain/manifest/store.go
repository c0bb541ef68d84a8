package manifest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrReloadRejected is returned when a reload does not validate in full.
var ErrReloadRejected = errors.New("manifest reload rejected")

// Store holds the active catalog and swaps it atomically on reload.
// Readers never block and always see a complete catalog.
type Store struct {
	path     string
	logger   *zap.Logger
	validate *validator.Validate

	current  atomic.Pointer[Catalog]
	reloadMu sync.Mutex

	onChange func(*Catalog)
}

// NewStore creates a store for the catalog at path. It starts empty.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:     path,
		logger:   logger,
		validate: newValidator(),
	}
	s.current.Store(Empty(path))
	return s
}

// OnChange registers a callback invoked after each successful swap.
func (s *Store) OnChange(fn func(*Catalog)) {
	s.reloadMu.Lock()
	s.onChange = fn
	s.reloadMu.Unlock()
}

// Path returns the catalog location.
func (s *Store) Path() string { return s.path }

// Load reads the catalog. A missing or unreadable catalog yields an empty
// one; invalid entries are excluded. Both are logged as warnings.
func (s *Store) Load() *Catalog {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cat, err := loadPath(s.validate, s.path)
	if err != nil {
		s.logger.Warn("manifest unavailable, starting with empty catalog",
			zap.String("path", s.path), zap.Error(err))
		cat = Empty(s.path)
	}
	for _, issue := range cat.Issues() {
		s.logger.Warn("manifest entry excluded",
			zap.String("source", issue.Source),
			zap.Int("index", issue.Index),
			zap.String("id", issue.ID),
			zap.Error(issue.Err))
	}

	s.swap(cat)
	s.logger.Info("manifest loaded",
		zap.String("path", s.path),
		zap.Int("games", cat.Len()),
		zap.Strings("ids", cat.IDs()),
		zap.Int("excluded", len(cat.Issues())))
	return cat
}

// Reload replaces the catalog only if the new one validates in full. On
// any error the active catalog is kept.
func (s *Store) Reload() (*Catalog, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cat, err := loadPath(s.validate, s.path)
	if err != nil {
		s.logger.Warn("manifest reload failed", zap.String("path", s.path), zap.Error(err))
		return s.Snapshot(), fmt.Errorf("%w: %w", ErrReloadRejected, err)
	}
	if issues := cat.Issues(); len(issues) > 0 {
		errs := make([]error, 0, len(issues))
		for _, issue := range issues {
			errs = append(errs, issue)
		}
		err := errors.Join(errs...)
		s.logger.Warn("manifest reload rejected",
			zap.String("path", s.path), zap.Int("issues", len(issues)), zap.Error(err))
		return s.Snapshot(), fmt.Errorf("%w: %w", ErrReloadRejected, err)
	}

	s.swap(cat)
	s.logger.Info("manifest reloaded",
		zap.String("path", s.path),
		zap.Int("games", cat.Len()),
		zap.Strings("ids", cat.IDs()))
	return cat, nil
}

// Replace installs a prebuilt catalog. Used by tests and embedders.
func (s *Store) Replace(cat *Catalog) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.swap(cat)
}

func (s *Store) swap(cat *Catalog) {
	s.current.Store(cat)
	if s.onChange != nil {
		s.onChange(cat)
	}
}

// Snapshot returns the active catalog.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load()
}

// Resolve resolves text against the active catalog.
func (s *Store) Resolve(text string) (Resolution, error) {
	return s.Snapshot().Resolve(text)
}

// Get returns the entry with the given id from the active catalog.
func (s *Store) Get(id string) (Entry, bool) {
	return s.Snapshot().Get(id)
}

// Games lists the active catalog.
func (s *Store) Games() []Entry {
	return s.Snapshot().Games()
}
