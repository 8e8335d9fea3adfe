// transfer.go: Package download and install/uninstall lifecycle driver
//
// The transfer manager owns the per-extension installation state machine.
// Downloads stream to a per-extension destination under the package cache
// directory; installation is handed to the host installer surface as a
// fire-and-forget trigger and confirmed by bounded polling.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// downloadChunkSize is the buffer used for streamed package copies.
const downloadChunkSize = 32 * 1024

// transferState is the slice of registry state the transfer manager
// mutates. All transitions for an extension id funnel through these
// methods so no other call site ever touches installation state.
type transferState interface {
	// installationStatus returns the current status for an id.
	installationStatus(id string) InstallationStatus

	// setInstallationStatus records a state transition.
	setInstallationStatus(id string, status InstallationStatus)

	// downloadRef returns the cached package path for an id, if any.
	downloadRef(id string) (string, bool)

	// setDownloadRef records a successfully downloaded package path.
	setDownloadRef(id, path string)

	// confirmInstalled is called when the install monitor observes host
	// presence; it creates/refreshes the installed record.
	confirmInstalled(ctx context.Context, id string)

	// purgeExtension runs the atomic cleanup transaction after a
	// confirmed uninstall: record, package ref, cached instance and
	// update status all go together.
	purgeExtension(id string)
}

// TransferManager downloads extension packages and drives their
// installation lifecycle through the host installer surface.
//
// All methods are synchronous and context-aware; the Registry exposes
// fire-and-forget wrappers so the UI layer is never blocked. One
// TransferManager serves all extension ids; per-id state lives in the
// registry, keyed destinations prevent cross-extension collisions.
type TransferManager struct {
	host    HostPackageService
	state   transferState
	client  *http.Client
	probe   *presenceProbe
	monitor MonitorConfig

	cacheDir string
	logger   Logger
}

// NewTransferManager creates a transfer manager writing packages under
// cacheDir. A nil client selects a default with no overall timeout
// (downloads are bounded by ctx, not a fixed duration).
func NewTransferManager(host HostPackageService, state transferState, cacheDir string, monitor MonitorConfig, client *http.Client, logger Logger) *TransferManager {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &TransferManager{
		host:     host,
		state:    state,
		client:   client,
		probe:    &presenceProbe{host: host, logger: logger},
		monitor:  monitor.withDefaults(),
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// Download streams the extension package to its per-extension cache path.
//
// Transitions: IDLE/ERROR/DOWNLOADED -> DOWNLOADING -> DOWNLOADED on
// success, ERROR on failure. The copy goes to a temporary ".part" file
// first so a failed download never corrupts an existing cached package.
func (tm *TransferManager) Download(ctx context.Context, desc RemoteExtensionDescriptor) error {
	switch tm.state.installationStatus(desc.ID) {
	case StatusDownloading, StatusInstalling:
		return NewInvalidTransitionError(desc.ID, tm.state.installationStatus(desc.ID), "download")
	}
	if desc.DownloadPath == "" {
		return NewDownloadFailedError(desc.ID, fmt.Errorf("descriptor has no download path"))
	}

	tm.state.setInstallationStatus(desc.ID, StatusDownloading)

	dest := tm.PackagePath(desc.ID)
	if err := tm.downloadTo(ctx, desc.DownloadPath, dest); err != nil {
		tm.state.setInstallationStatus(desc.ID, StatusError)
		tm.logger.Error("Package download failed",
			"extension_id", desc.ID,
			"url", desc.DownloadPath,
			"error", err)
		return NewDownloadFailedError(desc.ID, err)
	}

	tm.state.setDownloadRef(desc.ID, dest)
	tm.state.setInstallationStatus(desc.ID, StatusDownloaded)
	tm.logger.Info("Package downloaded",
		"extension_id", desc.ID,
		"path", dest)
	return nil
}

// Install hands the downloaded package to the host installer and waits
// for the install monitor's verdict.
//
// Transitions: DOWNLOADED -> INSTALLING -> COMPLETED on confirmed
// presence. On a monitoring timeout status reverts to DOWNLOADED, never
// ERROR: the package on disk is still valid and the user can re-attempt
// without re-downloading.
func (tm *TransferManager) Install(ctx context.Context, id string) error {
	packagePath, ok := tm.state.downloadRef(id)
	if !ok {
		return NewPackageNotReadyError(id)
	}
	if status := tm.state.installationStatus(id); status != StatusDownloaded {
		return NewInvalidTransitionError(id, status, "install")
	}

	tm.state.setInstallationStatus(id, StatusInstalling)

	if err := tm.host.TriggerInstall(ctx, packagePath); err != nil {
		tm.state.setInstallationStatus(id, StatusDownloaded)
		return NewHostTriggerError(id, "install", err)
	}

	outcome, attempts := tm.probe.awaitPresence(ctx, id, tm.monitor)
	switch outcome {
	case pollSucceeded:
		tm.state.confirmInstalled(ctx, id)
		tm.state.setInstallationStatus(id, StatusCompleted)
		tm.logger.Info("Installation confirmed",
			"extension_id", id,
			"attempts", attempts)
		return nil
	case pollExhausted:
		tm.state.setInstallationStatus(id, StatusDownloaded)
		tm.logger.Warn("Installation not confirmed within budget",
			"extension_id", id,
			"attempts", attempts)
		return NewInstallTimeoutError(id, attempts)
	default:
		// Shutdown while waiting; state is re-derived from the host at
		// next startup, leave the transient status alone.
		tm.logger.Debug("Install monitoring cancelled",
			"extension_id", id)
		return ctx.Err()
	}
}

// Uninstall triggers the host uninstaller and waits for confirmed
// absence, at which point all local state for the id is purged as one
// cleanup transaction.
//
// If the host action never completes (the user cancels the system
// dialog), nothing is purged and state is left untouched: no destructive
// action on an ambiguous outcome.
func (tm *TransferManager) Uninstall(ctx context.Context, id string) error {
	if err := tm.host.TriggerUninstall(ctx, id); err != nil {
		return NewHostTriggerError(id, "uninstall", err)
	}

	outcome, attempts := tm.probe.awaitAbsence(ctx, id, tm.monitor)
	switch outcome {
	case pollSucceeded:
		tm.cleanupPackage(id)
		tm.state.purgeExtension(id)
		tm.logger.Info("Uninstall confirmed, local state purged",
			"extension_id", id,
			"attempts", attempts)
		return nil
	case pollExhausted:
		tm.logger.Warn("Uninstall not confirmed within budget, leaving state untouched",
			"extension_id", id,
			"attempts", attempts)
		return nil
	default:
		tm.logger.Debug("Uninstall monitoring cancelled",
			"extension_id", id)
		return ctx.Err()
	}
}

// PackagePath returns the dedicated on-disk destination for an extension
// id. Keyed paths keep concurrent downloads from colliding.
func (tm *TransferManager) PackagePath(id string) string {
	return filepath.Join(tm.cacheDir, sanitizePathComponent(id)+".pkg")
}

// cleanupPackage removes the cached package file after a confirmed
// uninstall. A missing file is fine; anything else is logged and ignored,
// the ref removal in purgeExtension is what matters.
func (tm *TransferManager) cleanupPackage(id string) {
	path, ok := tm.state.downloadRef(id)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		tm.logger.Warn("Failed to remove cached package",
			"extension_id", id,
			"path", path,
			"error", err)
	}
}

func (tm *TransferManager) downloadTo(ctx context.Context, sourceURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}

	resp, err := tm.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			tm.logger.Debug("Failed to close download body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) // #nosec G304 - path derives from sanitized extension id
	if err != nil {
		return err
	}

	buf := make([]byte, downloadChunkSize)
	_, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()

	if copyErr != nil {
		removePartial(part)
		return copyErr
	}
	if closeErr != nil {
		removePartial(part)
		return closeErr
	}

	return os.Rename(part, dest)
}

func removePartial(part string) {
	_ = os.Remove(part)
}

// sanitizePathComponent strips characters that could escape the cache
// directory from an extension id before it becomes a file name.
func sanitizePathComponent(id string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		string(os.PathSeparator), "_",
		"\x00", "",
	)
	cleaned := replacer.Replace(id)
	if cleaned == "" {
		cleaned = fmt.Sprintf("ext-%d", time.Now().UnixNano())
	}
	return cleaned
}
