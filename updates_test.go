// updates_test.go: Update detection and cooldown tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpdateState is a minimal updateState recording status changes.
type fakeUpdateState struct {
	mu       sync.Mutex
	records  []InstalledExtensionRecord
	remote   map[string]RemoteExtensionDescriptor
	statuses map[string]UpdateStatus
}

func newFakeUpdateState() *fakeUpdateState {
	return &fakeUpdateState{
		remote:   make(map[string]RemoteExtensionDescriptor),
		statuses: make(map[string]UpdateStatus),
	}
}

func (s *fakeUpdateState) installedRecords() []InstalledExtensionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InstalledExtensionRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *fakeUpdateState) remoteDescriptor(id string) (RemoteExtensionDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	desc, ok := s.remote[id]
	return desc, ok
}

func (s *fakeUpdateState) setUpdateStatus(id string, status UpdateStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

func (s *fakeUpdateState) clearUpdateStatus(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, id)
}

func (s *fakeUpdateState) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

func (s *fakeUpdateState) status(id string) (UpdateStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	return st, ok
}

func TestCheckForUpdatesDetectsNewerRemote(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.radio", Version: "1.0.0", VersionCode: 10000},
		{ID: "com.example.tape", Version: "2.0.0", VersionCode: 20000},
	}
	state.remote["com.example.radio"] = RemoteExtensionDescriptor{ID: "com.example.radio", Version: "1.1.0", VersionCode: 10100}
	state.remote["com.example.tape"] = RemoteExtensionDescriptor{ID: "com.example.tape", Version: "2.0.0", VersionCode: 20000}

	checker := NewUpdateChecker(state, nil, time.Hour, NewTestLogger())
	count, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	status, ok := state.status("com.example.radio")
	require.True(t, ok)
	assert.True(t, status.HasUpdate)
	assert.Equal(t, "1.1.0", status.AvailableVersion)
	assert.Equal(t, int64(10100), status.AvailableVersionCode)

	_, ok = state.status("com.example.tape")
	assert.False(t, ok, "equal versions must not flag an update")
}

func TestCheckForUpdatesClearsCaughtUp(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.radio", Version: "1.1.0", VersionCode: 10100},
	}
	state.remote["com.example.radio"] = RemoteExtensionDescriptor{ID: "com.example.radio", Version: "1.1.0", VersionCode: 10100}
	state.statuses["com.example.radio"] = UpdateStatus{HasUpdate: true, AvailableVersion: "1.1.0"}

	checker := NewUpdateChecker(state, nil, time.Hour, NewTestLogger())
	count, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, ok := state.status("com.example.radio")
	assert.False(t, ok, "status entries are removed the moment the install catches up")
}

func TestCheckForUpdatesClearsWhenDelisted(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.gone", Version: "1.0.0", VersionCode: 10000},
	}
	state.statuses["com.example.gone"] = UpdateStatus{HasUpdate: true}

	checker := NewUpdateChecker(state, nil, time.Hour, NewTestLogger())
	_, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)

	_, ok := state.status("com.example.gone")
	assert.False(t, ok, "an extension no longer listed remotely cannot have an update")
}

func TestCheckForUpdatesCooldownSkips(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.radio", Version: "1.0.0", VersionCode: 10000},
	}
	state.remote["com.example.radio"] = RemoteExtensionDescriptor{ID: "com.example.radio", VersionCode: 10100}

	store := newMemoryStore()
	store.SetInt64(lastUpdateCheckKey, time.Now().Unix())

	checker := NewUpdateChecker(state, store, time.Hour, NewTestLogger())
	count, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, count, "within cooldown the previous count is reported")

	_, ok := state.status("com.example.radio")
	assert.False(t, ok, "skipped checks must not reconcile statuses")
}

func TestCheckForUpdatesForceBypassesCooldown(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.radio", Version: "1.0.0", VersionCode: 10000},
	}
	state.remote["com.example.radio"] = RemoteExtensionDescriptor{ID: "com.example.radio", Version: "1.1.0", VersionCode: 10100}

	store := newMemoryStore()
	store.SetInt64(lastUpdateCheckKey, time.Now().Unix())

	checker := NewUpdateChecker(state, store, time.Hour, NewTestLogger())
	count, err := checker.CheckForUpdates(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCheckForUpdatesPersistsTimestamp(t *testing.T) {
	state := newFakeUpdateState()
	store := newMemoryStore()

	checker := NewUpdateChecker(state, store, time.Hour, NewTestLogger())
	_, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)

	last, ok := store.GetInt64(lastUpdateCheckKey)
	require.True(t, ok, "check timestamp must persist for the cooldown")
	assert.InDelta(t, time.Now().Unix(), last, 5)
	assert.GreaterOrEqual(t, store.saves, 1)
}

func TestCheckForUpdatesStaleTimestampRuns(t *testing.T) {
	state := newFakeUpdateState()
	state.records = []InstalledExtensionRecord{
		{ID: "com.example.radio", Version: "1.0.0", VersionCode: 10000},
	}
	state.remote["com.example.radio"] = RemoteExtensionDescriptor{ID: "com.example.radio", Version: "1.1.0", VersionCode: 10100}

	store := newMemoryStore()
	store.SetInt64(lastUpdateCheckKey, time.Now().Add(-2*time.Hour).Unix())

	checker := NewUpdateChecker(state, store, time.Hour, NewTestLogger())
	count, err := checker.CheckForUpdates(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
