package policy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Snapshot is one immutable loaded policy document. Readers share snapshots;
// a reload swaps in a fresh one atomically.
type Snapshot struct {
	Policies map[string]*Definition
	ModTime  time.Time
	LoadedAt time.Time
}

// Select returns the named policy, falling back to the default policy when
// the name is unknown.
func (s *Snapshot) Select(policyID string) (*Definition, error) {
	if policyID != "" {
		if def, ok := s.Policies[policyID]; ok {
			return def, nil
		}
	}
	if def, ok := s.Policies[DefaultPolicyID]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("no policy %q and no default policy", policyID)
}

// Store serves policy snapshots with hot reload. Reload is gated on the
// source file's modification time so the per-request cost is a single stat;
// fsnotify events only make the next check happen sooner. A failed reload
// keeps the last good snapshot serving.
type Store struct {
	path    string
	logger  *logger.Logger
	current atomic.Pointer[Snapshot]

	mu sync.Mutex // single reloader at a time
}

// NewStore loads the policy file and starts serving it. The initial load
// must succeed; a guard with no policy at all cannot evaluate anything.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	s := &Store{path: path, logger: log.WithComponent("policy")}
	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("initial policy load: %w", err)
	}
	return s, nil
}

// Current returns the snapshot to use for one request, reloading first if
// the source file changed. With no good snapshot available the caller must
// fail closed.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()

	info, err := os.Stat(s.path)
	if err != nil {
		if snap != nil {
			return snap, nil
		}
		return nil, fmt.Errorf("policy file unavailable: %w", err)
	}

	if snap != nil && !info.ModTime().After(snap.ModTime) {
		return snap, nil
	}

	if err := s.reload(); err != nil {
		s.logger.Error("Policy reload failed, keeping last good snapshot",
			zap.String("path", s.path),
			zap.Error(err))
		if snap != nil {
			return snap, nil
		}
		return nil, err
	}
	return s.current.Load(), nil
}

func (s *Store) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat policy file: %w", err)
	}
	// Another goroutine may have finished this exact reload already.
	if snap := s.current.Load(); snap != nil && !info.ModTime().After(snap.ModTime) {
		return nil
	}

	policies, err := Load(s.path)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Policies: policies,
		ModTime:  info.ModTime(),
		LoadedAt: time.Now(),
	}
	s.current.Store(snap)

	s.logger.Info("Policy snapshot loaded",
		zap.String("path", s.path),
		zap.Int("policies", len(policies)),
		zap.Time("mtime", info.ModTime()))
	return nil
}

// Watch reloads eagerly on file change events until the context is
// cancelled. The mtime gate in Current stays authoritative, so running
// without a watcher only delays pickup to the next request.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching policy file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.Error("Policy reload on change failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Policy watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
