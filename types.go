// types.go: Common data types and structures for the extension runtime
//
// This file contains all shared data type definitions used throughout the
// extension runtime. These types represent the common data models and
// enumerations used by the registry, the transfer manager, the loader and
// the capability adapter. The separation of these types from the component
// implementations improves code organization and maintainability.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"time"
)

// InstallationStatus represents the per-extension installation state machine.
//
// Transitions are driven by the TransferManager and the installation
// monitors:
//   - StatusIdle: nothing downloaded or installed for this id
//   - StatusDownloading: package download in progress
//   - StatusDownloaded: package present on disk, not yet installed
//   - StatusInstalling: host install triggered, awaiting confirmation
//   - StatusCompleted: host confirmed the package is installed
//   - StatusError: download failed (retryable from idle semantics)
//
// An install-confirmation timeout reverts to StatusDownloaded, never to
// StatusError: the downloaded package remains valid for a retry.
type InstallationStatus int

const (
	StatusIdle InstallationStatus = iota
	StatusDownloading
	StatusDownloaded
	StatusInstalling
	StatusCompleted
	StatusError
)

// String returns a human-readable representation of the installation status.
func (s InstallationStatus) String() string {
	switch s {
	case StatusDownloading:
		return "downloading"
	case StatusDownloaded:
		return "downloaded"
	case StatusInstalling:
		return "installing"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Repository identifies a remote extension repository by URL.
//
// Repositories are owned by the Registry: one is created when a user adds
// a source and removed on explicit removal, which also cascades removal of
// the cached remote listing fetched from it.
type Repository struct {
	URL string `json:"url"`
}

// RemoteExtensionDescriptor is an immutable snapshot of one extension as
// advertised by a repository manifest.
//
// Descriptors are superseded wholesale on each manifest re-fetch; they are
// never mutated in place. VersionCode is derived from Version at parse
// time so update comparison never re-parses version strings.
type RemoteExtensionDescriptor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	VersionCode    int64    `json:"version_code"`
	Developer      string   `json:"developer,omitempty"`
	Description    string   `json:"description,omitempty"`
	DownloadPath   string   `json:"download_path,omitempty"`
	IconURL        string   `json:"icon_url,omitempty"`
	SourceURL      string   `json:"source_url,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	MinHostVersion string   `json:"min_host_version,omitempty"`
	Features       []string `json:"features,omitempty"`

	// RepositoryURL records which repository this snapshot came from.
	RepositoryURL string `json:"repository_url,omitempty"`
}

// InstalledExtensionRecord tracks one extension the host reports as
// installed.
//
// A record exists if and only if the host-reported presence check returns
// true for the id: the Registry reconciles against host state and never
// assumes. Usage fields feed the UI layer's "recently used" surfaces.
type InstalledExtensionRecord struct {
	ID          string             `json:"id"`
	Version     string             `json:"version"`
	VersionCode int64              `json:"version_code"`
	Name        string             `json:"name"`
	Developer   string             `json:"developer,omitempty"`
	Description string             `json:"description,omitempty"`
	Status      InstallationStatus `json:"status"`
	Loaded      bool               `json:"loaded"`
	LastUsed    time.Time          `json:"last_used"`
	UseCount    int64              `json:"use_count"`
}

// UpdateStatus describes an available update for an installed extension.
//
// Entries exist only while an update is actually available; they are
// removed as soon as the installed version catches up.
type UpdateStatus struct {
	HasUpdate            bool   `json:"has_update"`
	AvailableVersion     string `json:"available_version"`
	AvailableVersionCode int64  `json:"available_version_code"`
}

// TrackDescriptor is the canonical search result row produced by every
// adapted extension, whatever shape the raw extension returned.
type TrackDescriptor struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album,omitempty"`
	DurationMillis int64  `json:"duration_millis,omitempty"`
	ArtworkURL     string `json:"artwork_url,omitempty"`
	StreamURL      string `json:"stream_url,omitempty"`
}

// MusicSource is the canonical extension contract consumed by the UI and
// playback layers.
//
// Every loaded extension is exposed through this interface, either
// directly (when the extension implements it) or through a
// CapabilityAdapter that bridges a structurally different instance.
// Implementations returned by the Registry never panic across this
// boundary: failures surface as errors or empty results.
type MusicSource interface {
	// Search returns tracks matching the query, honoring limit/offset
	// pagination where the underlying extension supports it.
	Search(ctx context.Context, query string, limit, offset int) ([]TrackDescriptor, error)

	// ResolvePlayableLocation resolves a track id to a playable stream
	// location (typically a URL).
	ResolvePlayableLocation(ctx context.Context, mediaID string) (string, error)

	// FetchArtwork retrieves raw artwork bytes for the given URL.
	FetchArtwork(ctx context.Context, url string) ([]byte, error)
}

// Initializer is the optional lifecycle hook an extension may implement to
// be initialized once, before first use.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Cleaner is the optional lifecycle hook an extension may implement to
// release resources when it is invalidated or uninstalled.
type Cleaner interface {
	Cleanup() error
}

// ArtistBrowser is an optional metadata lookup some extensions provide.
type ArtistBrowser interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]string, error)
}

// AlbumBrowser is an optional metadata lookup some extensions provide.
type AlbumBrowser interface {
	SearchAlbums(ctx context.Context, query string, limit int) ([]string, error)
}

// LegacyTrackProvider is a recognizable alternate contract implemented by
// an older generation of extensions. The loader accepts it as a valid
// entry type and the CapabilityAdapter bridges it onto MusicSource.
type LegacyTrackProvider interface {
	FindTracks(query string, limit int) ([]TrackDescriptor, error)
	GetStreamUrl(trackID string) (string, error)
}

// RegistrySnapshot is one immutable observation of the registry state.
//
// Snapshots are what Subscribe delivers: a new subscriber immediately
// receives the latest snapshot, then one snapshot per subsequent change.
// All maps are copies; mutating a snapshot never affects the registry.
type RegistrySnapshot struct {
	Revision     uint64                               `json:"revision"`
	TakenAt      time.Time                            `json:"taken_at"`
	Repositories []Repository                         `json:"repositories"`
	Remote       map[string]RemoteExtensionDescriptor `json:"remote"`
	Installed    map[string]InstalledExtensionRecord  `json:"installed"`
	Statuses     map[string]InstallationStatus        `json:"statuses"`
	Downloads    map[string]string                    `json:"downloads"`
	Updates      map[string]UpdateStatus              `json:"updates"`
}
