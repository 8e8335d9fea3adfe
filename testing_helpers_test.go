// testing_helpers_test.go: Shared fakes and helpers for the test suite
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agilira/go-errors"
)

// fakeHost is an in-memory HostPackageService with injectable failures.
// Trigger behavior is hook-driven so each test decides whether the host
// action "completes" and when.
type fakeHost struct {
	mu       sync.Mutex
	packages map[string]HostPackage

	isInstalledErr error
	listErr        error

	triggerInstallErr   error
	triggerUninstallErr error

	// onInstall runs under the lock when TriggerInstall is called. The
	// default fake host does nothing, simulating a host action that never
	// completes.
	onInstall func(packagePath string)

	// onUninstall runs under the lock when TriggerUninstall is called.
	onUninstall func(id string)

	installCalls   []string
	uninstallCalls []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{packages: make(map[string]HostPackage)}
}

func (h *fakeHost) addPackage(pkg HostPackage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packages[pkg.ID] = pkg
}

func (h *fakeHost) removePackage(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.packages, id)
}

func (h *fakeHost) IsInstalled(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isInstalledErr != nil {
		return false, h.isInstalledErr
	}
	_, ok := h.packages[id]
	return ok, nil
}

func (h *fakeHost) InstalledPackages(ctx context.Context) ([]HostPackage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	out := make([]HostPackage, 0, len(h.packages))
	for _, pkg := range h.packages {
		out = append(out, pkg)
	}
	return out, nil
}

func (h *fakeHost) PackageInfo(ctx context.Context, id string) (HostPackage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pkg, ok := h.packages[id]
	if !ok {
		return HostPackage{}, fmt.Errorf("package %s not installed", id)
	}
	return pkg, nil
}

func (h *fakeHost) TriggerInstall(ctx context.Context, packagePath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.installCalls = append(h.installCalls, packagePath)
	if h.triggerInstallErr != nil {
		return h.triggerInstallErr
	}
	if h.onInstall != nil {
		h.onInstall(packagePath)
	}
	return nil
}

func (h *fakeHost) TriggerUninstall(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uninstallCalls = append(h.uninstallCalls, id)
	if h.triggerUninstallErr != nil {
		return h.triggerUninstallErr
	}
	if h.onUninstall != nil {
		h.onUninstall(id)
	}
	return nil
}

// fakeModule and fakeCodeHost stub the dynamic loading surface.
type fakeModule struct {
	symbols map[string]any
}

func (m *fakeModule) Lookup(symbol string) (any, error) {
	sym, ok := m.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	return sym, nil
}

type fakeCodeHost struct {
	mu      sync.Mutex
	symbols map[string]any
	openErr error
	opened  []string
}

func (h *fakeCodeHost) Open(codePath string) (CodeModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, codePath)
	if h.openErr != nil {
		return nil, h.openErr
	}
	return &fakeModule{symbols: h.symbols}, nil
}

// memoryStore is a map-backed KeyValueStore.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]any
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]any)}
}

func (s *memoryStore) GetString(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key].(string)
	return v, ok
}

func (s *memoryStore) SetString(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memoryStore) GetInt64(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key].(int64)
	return v, ok
}

func (s *memoryStore) SetInt64(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memoryStore) GetStringSlice(key string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key].([]string)
	return v, ok
}

func (s *memoryStore) SetStringSlice(key string, value []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *memoryStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

// stubSource is a canned MusicSource used as a loaded extension entry.
type stubSource struct {
	tracks     []TrackDescriptor
	searchErr  error
	resolveErr error
	cleanedUp  bool
}

func (s *stubSource) Search(ctx context.Context, query string, limit, offset int) ([]TrackDescriptor, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.tracks, nil
}

func (s *stubSource) ResolvePlayableLocation(ctx context.Context, mediaID string) (string, error) {
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return "https://stream.example.com/" + mediaID, nil
}

func (s *stubSource) FetchArtwork(ctx context.Context, url string) ([]byte, error) {
	return []byte("artwork"), nil
}

func (s *stubSource) Cleanup() error {
	s.cleanedUp = true
	return nil
}

// writeTempArtifact creates a throwaway code artifact file for loader
// staging and returns its path.
func writeTempArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extension.so")
	if err := os.WriteFile(path, []byte("fake artifact bytes"), 0o640); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	return path
}

// assertErrorCode fails the test unless err is a coded runtime error with
// the expected code.
func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error with code %s, got nil", code)
	}
	coded, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("Expected *errors.Error, got %T: %v", err, err)
	}
	if coded.ErrorCode() != errors.ErrorCode(code) {
		t.Fatalf("Expected error code %s, got %s", code, coded.ErrorCode())
	}
}
