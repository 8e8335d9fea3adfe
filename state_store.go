// state_store.go: Persistent runtime state with live file watching
//
// The state store persists the small durable slice of registry state
// (repository URLs, update-check timestamps) as a JSON document managed
// through Viper. An optional Argus watcher observes the file for
// out-of-band edits and an Argus audit trail records extension
// lifecycle events.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/spf13/viper"
)

// repositoryURLsKey holds the persisted repository list.
const repositoryURLsKey = "repositories.urls"

// StateStore is a viper-backed KeyValueStore persisting to one JSON
// file. A missing file is an empty store; Save creates parent
// directories as needed.
type StateStore struct {
	mu       sync.Mutex
	v        *viper.Viper
	path     string
	logger   Logger
	lastSave time.Time
}

// selfWriteWindow bounds how long after a Save a watcher-reported change
// is still attributed to the store's own write. It covers the watcher's
// poll interval plus its cache TTL.
const selfWriteWindow = 5 * time.Second

// Compile-time interface check.
var _ KeyValueStore = (*StateStore)(nil)

// NewStateStore opens (or initializes) the state file at path.
func NewStateStore(path string, logger Logger) (*StateStore, error) {
	if logger == nil {
		logger = DefaultLogger()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			return nil, NewStateStoreError("read", err)
		}
		logger.Debug("State file absent, starting empty", "path", path)
	}

	return &StateStore{v: v, path: path, logger: logger}, nil
}

// GetString returns a persisted string value.
func (s *StateStore) GetString(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return "", false
	}
	return s.v.GetString(key), true
}

// SetString stores a string value. Save persists it.
func (s *StateStore) SetString(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// GetInt64 returns a persisted integer value.
func (s *StateStore) GetInt64(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return 0, false
	}
	return s.v.GetInt64(key), true
}

// SetInt64 stores an integer value. Save persists it.
func (s *StateStore) SetInt64(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// GetStringSlice returns a persisted string list.
func (s *StateStore) GetStringSlice(key string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return nil, false
	}
	return s.v.GetStringSlice(key), true
}

// SetStringSlice stores a string list. Save persists it.
func (s *StateStore) SetStringSlice(key string, value []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// Delete removes a key. Viper has no true delete, so the value is
// blanked; readers treat zero values through the IsSet guard.
func (s *StateStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, nil)
}

// Save writes the document to disk.
func (s *StateStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return NewStateStoreError("save", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return NewStateStoreError("save", err)
	}
	s.lastSave = time.Now()
	return nil
}

// consumeSelfWrite reports whether a just-observed file change is the
// store's own recent Save, clearing the marker so only one change event
// per save is absorbed. Out-of-band edits therefore always get through.
func (s *StateStore) consumeSelfWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSave.IsZero() || time.Since(s.lastSave) > selfWriteWindow {
		return false
	}
	s.lastSave = time.Time{}
	return true
}

// RepositoryURLs returns the persisted repository list.
func (s *StateStore) RepositoryURLs() []string {
	urls, _ := s.GetStringSlice(repositoryURLsKey)
	return urls
}

// SetRepositoryURLs persists the repository list immediately.
func (s *StateStore) SetRepositoryURLs(urls []string) error {
	s.SetStringSlice(repositoryURLsKey, urls)
	return s.Save()
}

// Path returns the backing file path.
func (s *StateStore) Path() string {
	return s.path
}

// stateWatcher observes the state file with Argus and keeps the audit
// trail for extension lifecycle events next to it.
type stateWatcher struct {
	watcher *argus.Watcher
	audit   *argus.AuditLogger
	logger  Logger
}

// newStateWatcher starts watching path, invoking onChange for every
// external modification. The audit log lives beside the state file.
func newStateWatcher(path string, logger Logger, onChange func()) (*stateWatcher, error) {
	if logger == nil {
		logger = DefaultLogger()
	}

	watcher := argus.New(argus.Config{
		PollInterval:         2 * time.Second,
		CacheTTL:             time.Second,
		MaxWatchedFiles:      4,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filePath string) {
			logger.Error("State watcher error", "file", filePath, "error", err)
		},
	})

	if err := watcher.Watch(path, func(event argus.ChangeEvent) {
		logger.Info("State file changed externally",
			"path", event.Path,
			"mod_time", event.ModTime)
		onChange()
	}); err != nil {
		return nil, NewStateStoreError("watch", err)
	}
	if err := watcher.Start(); err != nil {
		return nil, NewStateStoreError("watch", err)
	}

	sw := &stateWatcher{watcher: watcher, logger: logger}

	auditLogger, err := argus.NewAuditLogger(argus.AuditConfig{
		Enabled:       true,
		OutputFile:    filepath.Join(filepath.Dir(path), "musicsource-audit.jsonl"),
		MinLevel:      argus.AuditInfo,
		BufferSize:    1000,
		FlushInterval: 10 * time.Second,
	})
	if err != nil {
		// The watcher is useful without the audit trail.
		logger.Warn("Audit logger unavailable", "error", err)
	} else {
		sw.audit = auditLogger
	}

	return sw, nil
}

// auditEvent records one lifecycle event in the audit trail.
func (sw *stateWatcher) auditEvent(event string, context map[string]interface{}) {
	if sw == nil || sw.audit == nil {
		return
	}
	sw.audit.LogSecurityEvent(event, "extension lifecycle event", context)
}

// stop halts watching and flushes the audit trail.
func (sw *stateWatcher) stop() {
	if sw == nil {
		return
	}
	if sw.watcher != nil {
		if err := sw.watcher.Stop(); err != nil {
			sw.logger.Warn("Failed to stop state watcher", "error", err)
		}
	}
	if sw.audit != nil {
		if err := sw.audit.Close(); err != nil {
			sw.logger.Warn("Failed to close audit logger", "error", err)
		}
	}
}
