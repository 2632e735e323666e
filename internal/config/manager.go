package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tallybot/pkg/logx"
)

// Manager watches the settings file and publishes parsed updates to
// subscribers. Parse failures and rejected settings keep the previous
// version in effect.
type Manager struct {
	path string
	log  logx.Logger

	// validator runs before an update is published; a non-nil error
	// rejects the new settings.
	validator func(Settings) error

	mu       sync.Mutex
	lastHash uint64
	subs     []chan Settings
}

func NewManager(path string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{path: path, log: log}
}

func (m *Manager) SetValidator(fn func(Settings) error) { m.validator = fn }

// Commit records settings content as current so an unchanged rewrite of
// the file does not trigger a redundant publish.
func (m *Manager) Commit(raw []byte) {
	m.mu.Lock()
	m.lastHash = hashBytes(raw)
	m.mu.Unlock()
}

func (m *Manager) Subscribe(buffer int) chan Settings {
	ch := make(chan Settings, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) publish(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		// Deliver the latest; if the subscriber is slow, drop one stale
		// item so the newest settings still land.
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Watch blocks until ctx is done, reloading the settings file on change.
// Writes are debounced so editors that emit multiple events per save do
// not cause partial reads.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { m.reload() })
	}

	m.log.Info("watching settings", logx.String("path", m.path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("settings watcher error", logx.Err(err))
		}
	}
}

func (m *Manager) reload() {
	b, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("settings read failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashBytes(b)
	m.mu.Lock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.Unlock()
	if unchanged {
		m.log.Debug("settings unchanged; skipping reload", logx.String("path", m.path))
		return
	}

	s, err := ParseSettings(m.path, b)
	if err != nil {
		m.log.Warn("settings parse failed", logx.Err(err))
		return
	}
	if m.validator != nil {
		if err := m.validator(s); err != nil {
			m.log.Warn("settings rejected", logx.Err(err))
			return
		}
	}

	m.mu.Lock()
	m.lastHash = h
	m.mu.Unlock()
	m.publish(s)
	m.log.Info("settings reloaded", logx.String("path", m.path))
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
