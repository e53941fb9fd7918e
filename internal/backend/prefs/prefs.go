// Package prefs keeps key/value preferences in a YAML file and reloads them
// when the file is changed on disk.
package prefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/nearbyhal/internal/groutine"
)

// Manager implements hal.PreferencesManager.
type Manager struct {
	logger *logrus.Logger
	path   string

	mu     sync.RWMutex
	values map[string]any

	watcher *fsnotify.Watcher
	stop    context.CancelFunc
	done    <-chan struct{}
}

// Open loads path, creating its directory when missing, and starts watching
// it. A missing file is an empty preference set.
func Open(path string, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create preferences dir: %w", err)
	}
	m := &Manager{logger: logger, path: path, values: map[string]any{}}
	if err := m.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch preferences: %w", err)
	}
	// Editors and our own writes replace the file, so the directory is watched.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	m.watcher = watcher
	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	m.done = groutine.Go(ctx, "prefs-watch", m.watch)
	return m, nil
}

func (m *Manager) watch(ctx context.Context) {
	name := filepath.Clean(m.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			if err := m.reload(); err != nil {
				m.logger.WithError(err).WithField("path", m.path).Warn("Keeping previous preferences")
				continue
			}
			m.logger.WithField("path", m.path).Debug("Preferences reloaded")
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.WithError(err).Warn("Preferences watcher error")
		}
	}
}

func (m *Manager) reload() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		data, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse preferences %s: %w", m.path, err)
	}
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
	return nil
}

// save writes through a temporary file so readers never see a partial document.
// Callers hold m.mu.
func (m *Manager) save() bool {
	data, err := yaml.Marshal(m.values)
	if err == nil {
		tmp := m.path + ".tmp"
		if err = os.WriteFile(tmp, data, 0o600); err == nil {
			err = os.Rename(tmp, m.path)
		}
	}
	if err != nil {
		m.logger.WithError(err).WithField("path", m.path).Error("Failed to save preferences")
		return false
	}
	return true
}

func (m *Manager) set(key string, value any) bool {
	if key == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return m.save()
}

func (m *Manager) get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Manager) GetString(key, def string) string {
	if v, ok := m.get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (m *Manager) SetString(key, value string) bool { return m.set(key, value) }

func (m *Manager) GetBool(key string, def bool) bool {
	if v, ok := m.get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (m *Manager) SetBool(key string, value bool) bool { return m.set(key, value) }

func (m *Manager) GetInt64(key string, def int64) int64 {
	v, ok := m.get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	default:
		return def
	}
}

func (m *Manager) SetInt64(key string, value int64) bool { return m.set(key, value) }

// Remove deletes key; removing an absent key succeeds.
func (m *Manager) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return true
	}
	delete(m.values, key)
	return m.save()
}

// Close stops watching the file.
func (m *Manager) Close() error {
	if m.stop == nil {
		return nil
	}
	m.stop()
	err := m.watcher.Close()
	<-m.done
	m.stop = nil
	return err
}
