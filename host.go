// host.go: Collaborator interfaces consumed by the extension runtime
//
// The runtime does not own package installation, code loading or key-value
// persistence: the host application provides them. These interfaces are the
// complete surface the runtime consumes, which keeps every component
// testable with injected fakes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"plugin"
)

// HostPackage describes one package the host reports as installed.
type HostPackage struct {
	// ID is the host-level package identifier (matches the extension id).
	ID string `json:"id"`

	// Version and VersionCode as reported by the host package manager.
	Version     string `json:"version"`
	VersionCode int64  `json:"version_code"`

	// CodePath is the on-disk location of the package's code artifact.
	CodePath string `json:"code_path"`

	// EntryClass is the entry type name declared in the package's own
	// metadata, when present. Empty means undeclared.
	EntryClass string `json:"entry_class,omitempty"`

	Name      string `json:"name,omitempty"`
	Developer string `json:"developer,omitempty"`
}

// HostPackageService is the host operating system's package surface.
//
// Install and uninstall triggers are fire-and-forget: the calls return
// before the host action actually completes and no completion callback
// exists. Outcome confirmation is the installation monitors' job.
type HostPackageService interface {
	// IsInstalled is a point-in-time presence check for a package id.
	IsInstalled(ctx context.Context, id string) (bool, error)

	// InstalledPackages lists every installed package. Used as the
	// exhaustive fallback when the direct lookup is flaky.
	InstalledPackages(ctx context.Context) ([]HostPackage, error)

	// PackageInfo returns metadata for one installed package.
	PackageInfo(ctx context.Context, id string) (HostPackage, error)

	// TriggerInstall asks the host to install the package at the given
	// local path. Returns once the host action has been started.
	TriggerInstall(ctx context.Context, packagePath string) error

	// TriggerUninstall asks the host to uninstall the package. Returns
	// once the host action has been started.
	TriggerUninstall(ctx context.Context, id string) error
}

// CodeModule is one loaded code artifact. Lookup resolves an exported
// symbol by name; the returned value is the candidate entry object (or a
// constructor for it).
type CodeModule interface {
	Lookup(symbol string) (any, error)
}

// CodeHost is the dynamic code-loading primitive.
//
// Implementations must load each artifact into an isolated context: the
// extension's code is never merged into the application's own load
// namespace, and a failure while loading one artifact must not poison
// another.
type CodeHost interface {
	Open(codePath string) (CodeModule, error)
}

// KeyValueStore is the minimal persistence primitive the runtime needs.
//
// Only two items must survive a process restart: the set of repository
// URLs and the update-check cooldown timestamp. Everything else is
// re-derived from host package state at startup.
type KeyValueStore interface {
	GetString(key string) (string, bool)
	SetString(key, value string)
	GetInt64(key string) (int64, bool)
	SetInt64(key string, value int64)
	GetStringSlice(key string) ([]string, bool)
	SetStringSlice(key string, value []string)
	Delete(key string)

	// Save flushes pending writes to durable storage.
	Save() error
}

// pluginCodeHost loads code artifacts through the standard library plugin
// mechanism. Each Open call produces an independent module handle; the Go
// runtime keeps plugin symbol tables separate from the application's own
// packages.
type pluginCodeHost struct{}

// NewPluginCodeHost returns a CodeHost backed by the Go plugin loader.
//
// Only available on platforms where Go plugin loading is supported; on
// other platforms Open returns the runtime's load error.
func NewPluginCodeHost() CodeHost {
	return &pluginCodeHost{}
}

type pluginModule struct {
	p *plugin.Plugin
}

func (m *pluginModule) Lookup(symbol string) (any, error) {
	sym, err := m.p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return any(sym), nil
}

func (h *pluginCodeHost) Open(codePath string) (CodeModule, error) {
	p, err := plugin.Open(codePath)
	if err != nil {
		return nil, err
	}
	return &pluginModule{p: p}, nil
}
