// Package signals delivers one-call escalation overrides to the retry engine.
// Overrides arrive programmatically or as files named escalate-<role> in the
// signals directory; the file content names the target role.
package signals

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// DirName is the signals directory inside the data directory.
const DirName = "signals"

const filePrefix = "escalate-"

// Watcher holds pending escalations keyed by the role they apply to.
type Watcher struct {
	dir string

	mu      sync.Mutex
	pending map[models.Role]models.Role

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// Open creates the signals directory under dataDir and starts watching it.
// When fsnotify is unavailable the watcher still works through the stat
// fallback in Take.
func Open(dataDir string) (*Watcher, error) {
	dir := filepath.Join(dataDir, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		pending: make(map[models.Role]models.Role),
		done:    make(chan struct{}),
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[signals] watcher unavailable, using stat fallback: %v", err)
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		log.Printf("[signals] cannot watch %s, using stat fallback: %v", dir, err)
		return w, nil
	}
	w.watcher = fw

	go w.watch()

	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			role, ok := roleFromFile(filepath.Base(event.Name))
			if !ok {
				continue
			}
			w.mu.Lock()
			w.loadLocked(role)
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[signals] watch error: %v", err)
		}
	}
}

// Escalate records an in-process escalation of role to target. An empty
// target means the canonical role of the next tier up.
func (w *Watcher) Escalate(role, target models.Role) {
	if target == "" {
		target = nextTier(role)
	}
	w.mu.Lock()
	w.pending[role] = target
	w.mu.Unlock()
	log.Printf("[signals] escalation armed: %s -> %s", role, target)
}

// Take consumes the pending escalation for role, if any. Each escalation
// applies to exactly one call.
func (w *Watcher) Take(role models.Role) (models.Role, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// The file is re-read even when armed: a Create event can be seen before
	// the writer has filled in the target.
	target, ok := w.pending[role]
	if fileTarget, found := w.loadLocked(role); found {
		target, ok = fileTarget, true
	}
	if !ok {
		return "", false
	}
	delete(w.pending, role)
	if err := os.Remove(w.path(role)); err != nil && !os.IsNotExist(err) {
		log.Printf("[signals] remove signal for %s: %v", role, err)
	}
	return target, true
}

// Pending returns a copy of the armed escalations.
func (w *Watcher) Pending() map[models.Role]models.Role {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[models.Role]models.Role, len(w.pending))
	for k, v := range w.pending {
		out[k] = v
	}
	return out
}

// Close stops the file watcher. Pending escalations are discarded.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

// loadLocked reads the signal file for role into pending. Invalid files are
// logged and removed.
func (w *Watcher) loadLocked(role models.Role) (models.Role, bool) {
	path := w.path(role)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	target := nextTier(role)
	if name := strings.TrimSpace(string(content)); name != "" {
		parsed, err := models.ParseRole(name)
		if err != nil {
			log.Printf("[signals] ignoring %s: %v", filepath.Base(path), err)
			os.Remove(path)
			delete(w.pending, role)
			return "", false
		}
		target = parsed
	}

	w.pending[role] = target
	return target, true
}

func (w *Watcher) path(role models.Role) string {
	return filepath.Join(w.dir, filePrefix+string(role))
}

// Send writes an escalation signal file for role under dataDir. It is used
// by processes that do not hold the Watcher.
func Send(dataDir string, role, target models.Role) error {
	dir := filepath.Join(dataDir, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filePrefix+string(role)), []byte(target), 0644)
}

func roleFromFile(name string) (models.Role, bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return "", false
	}
	role, err := models.ParseRole(strings.TrimPrefix(name, filePrefix))
	if err != nil {
		return "", false
	}
	return role, true
}

// nextTier returns the canonical role one tier above role, capped at the top tier.
func nextTier(role models.Role) models.Role {
	spec, ok := role.Spec()
	if !ok {
		return models.CanonicalRole(models.TierComplex)
	}
	next := spec.Tier + 1
	if next > models.TierComplex {
		next = models.TierComplex
	}
	return models.CanonicalRole(next)
}
