// updates.go: Stale-extension detection against repository listings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// lastUpdateCheckKey is where the cooldown timestamp persists across
// restarts.
const lastUpdateCheckKey = "updates.last_check_unix"

// DefaultUpdateCooldown is the minimum interval between unforced update
// checks.
const DefaultUpdateCooldown = 6 * time.Hour

// updateState is the slice of registry state the update checker reads
// and writes.
type updateState interface {
	installedRecords() []InstalledExtensionRecord
	remoteDescriptor(id string) (RemoteExtensionDescriptor, bool)
	setUpdateStatus(id string, status UpdateStatus)
	clearUpdateStatus(id string)
	updateCount() int
}

// UpdateChecker compares installed version codes against remote
// descriptors and maintains the per-extension UpdateStatus map.
type UpdateChecker struct {
	state    updateState
	store    KeyValueStore
	cooldown time.Duration
	logger   Logger

	mu sync.Mutex
}

// NewUpdateChecker creates an update checker. A non-positive cooldown
// selects DefaultUpdateCooldown.
func NewUpdateChecker(state updateState, store KeyValueStore, cooldown time.Duration, logger Logger) *UpdateChecker {
	if cooldown <= 0 {
		cooldown = DefaultUpdateCooldown
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &UpdateChecker{
		state:    state,
		store:    store,
		cooldown: cooldown,
		logger:   logger,
	}
}

// CheckForUpdates reconciles update statuses for every installed record
// and returns how many extensions currently have an update available.
//
// Unforced checks within the cooldown window are skipped and report the
// count from the previous reconciliation. An update exists when the
// remote version code strictly exceeds the installed one; entries are
// removed the moment they are no longer outdated.
func (uc *UpdateChecker) CheckForUpdates(ctx context.Context, force bool) (int, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := timecache.CachedTime()
	if !force && !uc.cooldownElapsed(now) {
		uc.logger.Debug("Update check skipped, within cooldown")
		return uc.state.updateCount(), nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	available := 0
	for _, record := range uc.state.installedRecords() {
		remote, ok := uc.state.remoteDescriptor(record.ID)
		if !ok {
			uc.state.clearUpdateStatus(record.ID)
			continue
		}

		if compareVersionCodes(remote.VersionCode, record.VersionCode) {
			uc.state.setUpdateStatus(record.ID, UpdateStatus{
				HasUpdate:            true,
				AvailableVersion:     remote.Version,
				AvailableVersionCode: remote.VersionCode,
			})
			available++
			uc.logger.Info("Update available",
				"extension_id", record.ID,
				"installed_version", record.Version,
				"available_version", remote.Version)
		} else {
			uc.state.clearUpdateStatus(record.ID)
		}
	}

	uc.rememberCheck(now)
	return available, nil
}

func (uc *UpdateChecker) cooldownElapsed(now time.Time) bool {
	if uc.store == nil {
		return true
	}
	last, ok := uc.store.GetInt64(lastUpdateCheckKey)
	if !ok {
		return true
	}
	return now.Sub(time.Unix(last, 0)) >= uc.cooldown
}

func (uc *UpdateChecker) rememberCheck(now time.Time) {
	if uc.store == nil {
		return
	}
	uc.store.SetInt64(lastUpdateCheckKey, now.Unix())
	if err := uc.store.Save(); err != nil {
		uc.logger.Warn("Failed to persist update check timestamp", "error", err)
	}
}
