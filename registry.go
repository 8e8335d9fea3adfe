// registry.go: Observable extension registry and instance cache
//
// The registry is the single mutable, observable store holding every
// runtime collection: repositories, remote descriptors, installed
// records, installation statuses, downloaded package refs, update
// statuses and memoized loaded instances. All mutation funnels through
// registry methods under one writer lock; observers consume immutable
// snapshots through a change stream.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// RegistryOptions configures a Registry and the components it owns.
type RegistryOptions struct {
	// Host is the host operating system's package surface. Required.
	Host HostPackageService

	// CodeHost loads installed extension code. Required for Instance();
	// a registry without one can still manage installs.
	CodeHost CodeHost

	// Logger for operational events. Defaults to DefaultLogger().
	Logger Logger

	// CacheDir is where downloaded packages live, keyed per extension.
	CacheDir string

	// StatePath is the persisted state file (repository URLs and the
	// update-check cooldown). Empty disables persistence.
	StatePath string

	// WatchState starts an argus watcher on StatePath so out-of-band
	// edits to the repositories file trigger a refresh.
	WatchState bool

	// HTTPClient used for manifest fetches and package downloads.
	HTTPClient *http.Client

	// Monitor is the polling budget for install/uninstall confirmation.
	Monitor MonitorConfig

	// UpdateCooldown between unforced update checks.
	UpdateCooldown time.Duration

	// BridgeWorkers sizes the async bridging pool for adapted calls.
	BridgeWorkers int
}

// Registry is the extension runtime's source of truth.
//
// Thread-safety: all collections are guarded by one RWMutex with a
// single-writer discipline; long-running work (downloads, module
// loading, monitoring) happens outside the lock and re-enters only to
// commit transitions.
type Registry struct {
	mu sync.RWMutex

	repositories []Repository
	remote       map[string]RemoteExtensionDescriptor
	remoteByRepo map[string][]string
	installed    map[string]InstalledExtensionRecord
	statuses     map[string]InstallationStatus
	downloads    map[string]string
	updates      map[string]UpdateStatus

	instances map[string]MusicSource
	loadMu    sync.Mutex // serializes instance population per registry

	revision    uint64
	subscribers map[int]chan RegistrySnapshot
	nextSubID   int
	closed      bool

	host     HostPackageService
	probe    *presenceProbe
	fetcher  *ManifestFetcher
	transfer *TransferManager
	loader   *ModuleLoader
	checker  *UpdateChecker
	bridge   *asyncBridge
	store    *StateStore
	watcher  *stateWatcher
	logger   Logger
}

// NewRegistry builds the runtime: state store, manifest fetcher,
// transfer manager, module loader, update checker and bridging pool.
// Persisted repository URLs are loaded immediately; installed-extension
// state is NOT loaded from disk, it is re-derived from the host on the
// first Sync.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = DefaultLogger()
	}

	r := &Registry{
		remote:       make(map[string]RemoteExtensionDescriptor),
		remoteByRepo: make(map[string][]string),
		installed:    make(map[string]InstalledExtensionRecord),
		statuses:     make(map[string]InstallationStatus),
		downloads:    make(map[string]string),
		updates:      make(map[string]UpdateStatus),
		instances:    make(map[string]MusicSource),
		subscribers:  make(map[int]chan RegistrySnapshot),
		host:         opts.Host,
		probe:        &presenceProbe{host: opts.Host, logger: logger},
		logger:       logger,
	}

	if opts.StatePath != "" {
		store, err := NewStateStore(opts.StatePath, logger)
		if err != nil {
			return nil, err
		}
		r.store = store
		for _, url := range store.RepositoryURLs() {
			r.repositories = append(r.repositories, Repository{URL: url})
		}
	}

	r.fetcher = NewManifestFetcher(opts.HTTPClient, logger)
	r.transfer = NewTransferManager(opts.Host, r, opts.CacheDir, opts.Monitor, opts.HTTPClient, logger)
	if opts.CodeHost != nil {
		r.loader = NewModuleLoader(opts.Host, opts.CodeHost, logger)
	}
	var checkerStore KeyValueStore
	if r.store != nil {
		checkerStore = r.store
	}
	r.checker = NewUpdateChecker(r, checkerStore, opts.UpdateCooldown, logger)
	r.bridge = newAsyncBridge(opts.BridgeWorkers, logger)

	if opts.WatchState && r.store != nil {
		watcher, err := newStateWatcher(opts.StatePath, logger, func() {
			if r.store.consumeSelfWrite() {
				logger.Debug("Ignoring state change from registry's own save")
				return
			}
			r.reloadPersistedRepositories()
			safeGo(logger, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if err := r.Refresh(ctx); err != nil {
					logger.Warn("Refresh after state change failed", "error", err)
				}
			})
		})
		if err != nil {
			return nil, err
		}
		r.watcher = watcher
	}

	return r, nil
}

// Close shuts the registry down: the state watcher stops, the bridging
// pool drains, cached instances get their Cleanup hook, and the loader's
// scratch directory is removed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	instances := r.instances
	r.instances = make(map[string]MusicSource)
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[int]chan RegistrySnapshot)
	r.mu.Unlock()

	if r.watcher != nil {
		r.watcher.stop()
	}
	r.bridge.close()
	for id, instance := range instances {
		r.cleanupInstance(id, instance)
	}
	if r.loader != nil {
		if err := r.loader.Close(); err != nil {
			r.logger.Warn("Failed to remove loader scratch directory", "error", err)
		}
	}
	return nil
}

// --- Repositories -----------------------------------------------------

// AddRepository registers a repository URL, persists it and triggers a
// background refresh of its listing.
func (r *Registry) AddRepository(ctx context.Context, url string) error {
	if _, err := NormalizeManifestURL(url); err != nil {
		return NewInvalidRepositoryError(url)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return NewRegistryClosedError()
	}
	for _, repo := range r.repositories {
		if repo.URL == url {
			r.mu.Unlock()
			return NewDuplicateRepositoryError(url)
		}
	}
	r.repositories = append(r.repositories, Repository{URL: url})
	r.persistRepositoriesLocked()
	r.emitLocked()
	r.mu.Unlock()

	r.audit("repository_added", map[string]interface{}{"url": url})
	safeGo(r.logger, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		r.refreshRepository(refreshCtx, url)
		if err := r.Sync(refreshCtx); err != nil {
			r.logger.Warn("Sync after repository add failed", "error", err)
		}
	})
	return nil
}

// RemoveRepository unregisters a repository and cascades removal of its
// cached remote listing.
func (r *Registry) RemoveRepository(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := -1
	for i, repo := range r.repositories {
		if repo.URL == url {
			index = i
			break
		}
	}
	if index < 0 {
		return NewRepositoryNotFoundError(url)
	}

	r.repositories = append(r.repositories[:index], r.repositories[index+1:]...)
	for _, id := range r.remoteByRepo[url] {
		if r.remote[id].RepositoryURL == url {
			delete(r.remote, id)
		}
	}
	delete(r.remoteByRepo, url)
	r.persistRepositoriesLocked()
	r.emitLocked()
	return nil
}

// Repositories returns the configured repository list.
func (r *Registry) Repositories() []Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Repository, len(r.repositories))
	copy(out, r.repositories)
	return out
}

func (r *Registry) persistRepositoriesLocked() {
	if r.store == nil {
		return
	}
	urls := make([]string, len(r.repositories))
	for i, repo := range r.repositories {
		urls[i] = repo.URL
	}
	if err := r.store.SetRepositoryURLs(urls); err != nil {
		r.logger.Warn("Failed to persist repository list", "error", err)
	}
}

func (r *Registry) reloadPersistedRepositories() {
	if r.store == nil {
		return
	}
	urls := r.store.RepositoryURLs()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.repositories = r.repositories[:0]
	for _, url := range urls {
		r.repositories = append(r.repositories, Repository{URL: url})
	}
	r.emitLocked()
}

// --- Refresh and reconciliation ---------------------------------------

// Refresh re-fetches every repository manifest, merges descriptors
// wholesale, reconciles installed records against the host and runs an
// unforced update check. A repository that fails contributes zero
// descriptors until the next refresh; its failure never aborts the rest.
func (r *Registry) Refresh(ctx context.Context) error {
	for _, repo := range r.Repositories() {
		r.refreshRepository(ctx, repo.URL)
	}
	if err := r.Sync(ctx); err != nil {
		return err
	}
	if _, err := r.checker.CheckForUpdates(ctx, false); err != nil {
		return err
	}
	return nil
}

func (r *Registry) refreshRepository(ctx context.Context, url string) {
	descriptors, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		r.logger.Warn("Repository refresh failed",
			"repository_url", url,
			"error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Descriptors are snapshots: the repository's previous listing is
	// superseded wholesale.
	for _, id := range r.remoteByRepo[url] {
		if r.remote[id].RepositoryURL == url {
			delete(r.remote, id)
		}
	}
	ids := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		r.remote[desc.ID] = desc
		ids = append(ids, desc.ID)
	}
	r.remoteByRepo[url] = ids
	r.emitLocked()
}

// Sync reconciles tracked records against host-reported package
// presence. It is idempotent: running it twice with no intervening host
// change produces no further record changes.
//
// For every extension id known remotely, tracked locally or reported
// installed by the host, exactly one of three actions applies: add a
// record (present but untracked), remove the record (tracked but
// absent), or refresh metadata (present, tracked, but the version
// drifted).
func (r *Registry) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := r.reconciliationIDs(ctx)
	for _, id := range ids {
		present := r.probe.installed(ctx, id)

		r.mu.RLock()
		record, tracked := r.installed[id]
		r.mu.RUnlock()

		switch {
		case present && !tracked:
			r.adoptInstalled(ctx, id)
		case !present && tracked:
			r.dropRecord(id)
		case present && tracked:
			r.refreshRecordMetadata(ctx, id, record)
		}
	}
	return nil
}

// reconciliationIDs builds the reconciliation universe: every id known
// remotely, tracked locally or reported installed by the host. The host
// scan is what makes startup adoption work, when no repository listing
// has been fetched yet and the tracked set is empty. A failing scan
// degrades to the remote and tracked ids; the bounded per-id probes
// still run.
func (r *Registry) reconciliationIDs(ctx context.Context) []string {
	r.mu.RLock()
	seen := make(map[string]bool, len(r.remote)+len(r.installed))
	ids := make([]string, 0, len(r.remote)+len(r.installed))
	for id := range r.remote {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range r.installed {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	packages, err := r.host.InstalledPackages(ctx)
	if err != nil {
		r.logger.Warn("Installed package scan failed during reconciliation",
			"error", err)
		return ids
	}
	for _, pkg := range packages {
		if !seen[pkg.ID] {
			seen[pkg.ID] = true
			ids = append(ids, pkg.ID)
		}
	}
	return ids
}

// adoptInstalled creates a record for a package the host reports present
// but the registry does not track yet.
func (r *Registry) adoptInstalled(ctx context.Context, id string) {
	record := r.recordFromHost(ctx, id)

	r.mu.Lock()
	r.installed[id] = record
	if r.statuses[id] != StatusCompleted {
		r.statuses[id] = StatusCompleted
	}
	r.emitLocked()
	r.mu.Unlock()

	r.logger.Info("Installed extension adopted",
		"extension_id", id,
		"version", record.Version)
}

// dropRecord removes a record whose package the host no longer reports,
// invalidating any cached instance.
func (r *Registry) dropRecord(id string) {
	r.mu.Lock()
	delete(r.installed, id)
	delete(r.updates, id)
	instance := r.instances[id]
	delete(r.instances, id)
	if _, downloaded := r.downloads[id]; downloaded {
		r.statuses[id] = StatusDownloaded
	} else {
		delete(r.statuses, id)
	}
	r.emitLocked()
	r.mu.Unlock()

	if instance != nil {
		r.cleanupInstance(id, instance)
	}
	r.logger.Info("Extension record removed, host no longer reports package",
		"extension_id", id)
}

// refreshRecordMetadata re-reads host metadata when the remote listing
// advertises a different version than the tracked record.
func (r *Registry) refreshRecordMetadata(ctx context.Context, id string, record InstalledExtensionRecord) {
	r.mu.RLock()
	remote, known := r.remote[id]
	r.mu.RUnlock()
	if !known || remote.Version == record.Version {
		return
	}

	fresh := r.recordFromHost(ctx, id)
	if fresh.Version == record.Version && fresh.VersionCode == record.VersionCode {
		return
	}

	r.mu.Lock()
	fresh.LastUsed = record.LastUsed
	fresh.UseCount = record.UseCount
	r.installed[id] = fresh
	instance := r.instances[id]
	delete(r.instances, id)
	r.emitLocked()
	r.mu.Unlock()

	if instance != nil {
		r.cleanupInstance(id, instance)
	}
	r.logger.Info("Extension metadata refreshed",
		"extension_id", id,
		"version", fresh.Version)
}

// recordFromHost builds a record from host package metadata, enriched
// with descriptor metadata where the host is silent.
func (r *Registry) recordFromHost(ctx context.Context, id string) InstalledExtensionRecord {
	record := InstalledExtensionRecord{
		ID:     id,
		Status: StatusCompleted,
	}

	if pkg, err := r.host.PackageInfo(ctx, id); err == nil {
		record.Version = pkg.Version
		record.VersionCode = pkg.VersionCode
		record.Name = pkg.Name
		record.Developer = pkg.Developer
		if record.VersionCode == 0 {
			record.VersionCode = deriveVersionCode(pkg.Version)
		}
	} else {
		r.logger.Debug("Host package metadata unavailable",
			"extension_id", id,
			"error", err)
	}

	r.mu.RLock()
	if remote, ok := r.remote[id]; ok {
		if record.Version == "" {
			record.Version = remote.Version
			record.VersionCode = remote.VersionCode
		}
		if record.Name == "" {
			record.Name = remote.Name
		}
		if record.Developer == "" {
			record.Developer = remote.Developer
		}
		record.Description = remote.Description
	}
	r.mu.RUnlock()

	return record
}

// --- Transfer operations ----------------------------------------------

// Download fetches the extension package synchronously. See
// StartDownload for the fire-and-forget form the UI layer uses.
func (r *Registry) Download(ctx context.Context, id string) error {
	r.mu.RLock()
	desc, ok := r.remote[id]
	r.mu.RUnlock()
	if !ok {
		return NewExtensionNotFoundError(id)
	}
	return r.transfer.Download(ctx, desc)
}

// Install triggers the host installer for a downloaded package and
// blocks until the install monitor's verdict.
func (r *Registry) Install(ctx context.Context, id string) error {
	err := r.transfer.Install(ctx, id)
	if err == nil {
		r.audit("extension_installed", map[string]interface{}{"extension_id": id})
	}
	return err
}

// Uninstall triggers the host uninstaller and blocks until confirmed
// absence or the monitoring budget runs out (in which case nothing is
// changed).
func (r *Registry) Uninstall(ctx context.Context, id string) error {
	err := r.transfer.Uninstall(ctx, id)
	if err == nil {
		r.audit("extension_uninstall_requested", map[string]interface{}{"extension_id": id})
	}
	return err
}

// StartDownload runs Download on a background goroutine.
func (r *Registry) StartDownload(id string) {
	safeGo(r.logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := r.Download(ctx, id); err != nil {
			r.logger.Warn("Background download failed", "extension_id", id, "error", err)
		}
	})
}

// StartInstall runs Install on a background goroutine.
func (r *Registry) StartInstall(id string) {
	safeGo(r.logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := r.Install(ctx, id); err != nil {
			r.logger.Warn("Background install failed", "extension_id", id, "error", err)
		}
	})
}

// StartUninstall runs Uninstall on a background goroutine.
func (r *Registry) StartUninstall(id string) {
	safeGo(r.logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := r.Uninstall(ctx, id); err != nil {
			r.logger.Warn("Background uninstall failed", "extension_id", id, "error", err)
		}
	})
}

// CheckForUpdates delegates to the update checker.
func (r *Registry) CheckForUpdates(ctx context.Context, force bool) (int, error) {
	return r.checker.CheckForUpdates(ctx, force)
}

// --- Instances ---------------------------------------------------------

// Instance returns the memoized adapted instance for an installed
// extension, loading and adapting it on first use. Usage statistics are
// recorded on every call.
func (r *Registry) Instance(ctx context.Context, id string) (MusicSource, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, NewRegistryClosedError()
	}
	_, tracked := r.installed[id]
	cached := r.instances[id]
	r.mu.RUnlock()

	if !tracked {
		return nil, NewExtensionNotFoundError(id)
	}
	if cached != nil {
		r.recordUsage(id)
		return cached, nil
	}
	if r.loader == nil {
		return nil, NewModuleOpenError(id, "", fmt.Errorf("no code host configured"))
	}

	// Serialize population so concurrent first uses load once.
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.RLock()
	cached = r.instances[id]
	r.mu.RUnlock()
	if cached != nil {
		r.recordUsage(id)
		return cached, nil
	}

	raw, err := r.loader.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	source := Adapt(raw, r.bridge, r.logger)
	if init, ok := raw.(Initializer); ok {
		// The hook is foreign code; a panicking extension must surface
		// as a load error, never crash the host.
		_, initErr := guardedCall("initialize", func() (any, error) {
			if err := init.Initialize(ctx); err != nil {
				return nil, NewAdapterInvocationError("initialize", err)
			}
			return nil, nil
		})()
		if initErr != nil {
			return nil, initErr
		}
	}

	r.mu.Lock()
	r.instances[id] = source
	if record, ok := r.installed[id]; ok {
		record.Loaded = true
		r.installed[id] = record
	}
	r.emitLocked()
	r.mu.Unlock()

	r.recordUsage(id)
	return source, nil
}

// Invalidate drops the cached instance for an id, forcing the next use
// to re-load and re-adapt fresh code. Called on update and uninstall.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	instance := r.instances[id]
	delete(r.instances, id)
	if record, ok := r.installed[id]; ok {
		record.Loaded = false
		r.installed[id] = record
	}
	r.emitLocked()
	r.mu.Unlock()

	if instance != nil {
		r.cleanupInstance(id, instance)
	}
}

func (r *Registry) cleanupInstance(id string, instance MusicSource) {
	cleaner, ok := instance.(Cleaner)
	if !ok {
		return
	}
	defer withStackRecover(r.logger)()
	if err := cleaner.Cleanup(); err != nil {
		r.logger.Warn("Extension cleanup hook failed",
			"extension_id", id,
			"error", err)
	}
}

func (r *Registry) recordUsage(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.installed[id]
	if !ok {
		return
	}
	record.LastUsed = timecache.CachedTime()
	record.UseCount++
	r.installed[id] = record
	r.emitLocked()
}

// --- Observation -------------------------------------------------------

// Snapshot returns an immutable copy of the current registry state.
func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Subscribe returns a channel delivering the latest snapshot immediately
// and one snapshot per subsequent change, plus a cancel function.
// Deliveries are latest-wins: a slow observer sees the newest state, not
// every intermediate one.
func (r *Registry) Subscribe() (<-chan RegistrySnapshot, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan RegistrySnapshot, 1)
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	ch <- r.snapshotLocked()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (r *Registry) snapshotLocked() RegistrySnapshot {
	snapshot := RegistrySnapshot{
		Revision:     r.revision,
		TakenAt:      timecache.CachedTime(),
		Repositories: make([]Repository, len(r.repositories)),
		Remote:       make(map[string]RemoteExtensionDescriptor, len(r.remote)),
		Installed:    make(map[string]InstalledExtensionRecord, len(r.installed)),
		Statuses:     make(map[string]InstallationStatus, len(r.statuses)),
		Downloads:    make(map[string]string, len(r.downloads)),
		Updates:      make(map[string]UpdateStatus, len(r.updates)),
	}
	copy(snapshot.Repositories, r.repositories)
	for id, desc := range r.remote {
		snapshot.Remote[id] = desc
	}
	for id, record := range r.installed {
		snapshot.Installed[id] = record
	}
	for id, status := range r.statuses {
		snapshot.Statuses[id] = status
	}
	for id, path := range r.downloads {
		snapshot.Downloads[id] = path
	}
	for id, update := range r.updates {
		snapshot.Updates[id] = update
	}
	return snapshot
}

// emitLocked bumps the revision and fans the new snapshot out to
// subscribers. Callers hold the write lock.
func (r *Registry) emitLocked() {
	r.revision++
	snapshot := r.snapshotLocked()
	for _, ch := range r.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Replace the stale pending snapshot with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// --- Accessors used by the UI layer ------------------------------------

// InstalledExtensions returns the tracked records.
func (r *Registry) InstalledExtensions() []InstalledExtensionRecord {
	return r.installedRecords()
}

// InstallationStatusFor returns the transient status for an id.
func (r *Registry) InstallationStatusFor(id string) InstallationStatus {
	return r.installationStatus(id)
}

// UpdateStatuses returns the current update map.
func (r *Registry) UpdateStatuses() map[string]UpdateStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]UpdateStatus, len(r.updates))
	for id, update := range r.updates {
		out[id] = update
	}
	return out
}

// --- transferState implementation --------------------------------------

func (r *Registry) installationStatus(id string) InstallationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statuses[id]
}

func (r *Registry) setInstallationStatus(id string, status InstallationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == StatusIdle {
		delete(r.statuses, id)
	} else {
		r.statuses[id] = status
	}
	r.emitLocked()
}

func (r *Registry) downloadRef(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.downloads[id]
	return path, ok
}

func (r *Registry) setDownloadRef(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[id] = path
	r.emitLocked()
}

func (r *Registry) confirmInstalled(ctx context.Context, id string) {
	record := r.recordFromHost(ctx, id)

	r.mu.Lock()
	previous, existed := r.installed[id]
	if existed {
		record.LastUsed = previous.LastUsed
		record.UseCount = previous.UseCount
	}
	r.installed[id] = record
	delete(r.updates, id)
	instance := r.instances[id]
	delete(r.instances, id)
	r.emitLocked()
	r.mu.Unlock()

	// An update replaced the code on disk; a cached instance would keep
	// serving the old version.
	if instance != nil {
		r.cleanupInstance(id, instance)
	}
}

func (r *Registry) purgeExtension(id string) {
	r.mu.Lock()
	delete(r.installed, id)
	delete(r.downloads, id)
	delete(r.updates, id)
	delete(r.statuses, id)
	instance := r.instances[id]
	delete(r.instances, id)
	r.emitLocked()
	r.mu.Unlock()

	if instance != nil {
		r.cleanupInstance(id, instance)
	}
}

// --- updateState implementation -----------------------------------------

func (r *Registry) installedRecords() []InstalledExtensionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]InstalledExtensionRecord, 0, len(r.installed))
	for _, record := range r.installed {
		out = append(out, record)
	}
	return out
}

func (r *Registry) remoteDescriptor(id string) (RemoteExtensionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.remote[id]
	return desc, ok
}

func (r *Registry) setUpdateStatus(id string, status UpdateStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = status
	r.emitLocked()
}

func (r *Registry) clearUpdateStatus(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.updates[id]; ok {
		delete(r.updates, id)
		r.emitLocked()
	}
}

func (r *Registry) updateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.updates)
}

func (r *Registry) audit(event string, context map[string]interface{}) {
	if r.watcher == nil {
		return
	}
	r.watcher.auditEvent(event, context)
}
