// state_store_test.go: Persistent state store tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)

	_, ok := store.GetString("anything")
	assert.False(t, ok)
	assert.Empty(t, store.RepositoryURLs())
}

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	store, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)

	store.SetString("greeting", "hello")
	store.SetInt64("updates.last_check_unix", 1700000000)
	store.SetStringSlice("repositories.urls", []string{"https://a.example.com", "https://b.example.com"})
	require.NoError(t, store.Save(), "save creates parent directories")

	// A fresh store over the same file sees the persisted values.
	reloaded, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)

	greeting, ok := reloaded.GetString("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", greeting)

	last, ok := reloaded.GetInt64("updates.last_check_unix")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), last)

	urls, ok := reloaded.GetStringSlice("repositories.urls")
	require.True(t, ok)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}

func TestStateStoreRepositoryURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, store.SetRepositoryURLs([]string{"https://repo.example.com"}))

	reloaded, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://repo.example.com"}, reloaded.RepositoryURLs())
}

func TestStateStoreMissingKeys(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.json"), NewTestLogger())
	require.NoError(t, err)

	_, ok := store.GetInt64("missing")
	assert.False(t, ok)
	_, ok = store.GetStringSlice("missing")
	assert.False(t, ok)
}

func TestStateStoreConsumeSelfWrite(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.json"), NewTestLogger())
	require.NoError(t, err)

	assert.False(t, store.consumeSelfWrite(), "no save yet, nothing to attribute")

	require.NoError(t, store.Save())
	assert.True(t, store.consumeSelfWrite(), "the change event right after a save is the save itself")
	assert.False(t, store.consumeSelfWrite(), "one save absorbs exactly one change event")
}

func TestRegistryLoadsPersistedRepositories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewStateStore(path, NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, store.SetRepositoryURLs([]string{"https://repo.example.com"}))

	registry, err := NewRegistry(RegistryOptions{
		Host:      newFakeHost(),
		Logger:    NewTestLogger(),
		CacheDir:  t.TempDir(),
		StatePath: path,
		Monitor:   fastMonitor(),
	})
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	repos := registry.Repositories()
	require.Len(t, repos, 1)
	assert.Equal(t, "https://repo.example.com", repos[0].URL)
}
