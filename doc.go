// doc.go: Package documentation for the go-musicsource extension runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package musicsource implements a dynamic extension runtime for music
// player applications: it discovers, downloads, installs, loads and
// invokes third-party "music source" extensions whose exact code shape
// is not known in advance.
//
// The runtime is built around a small number of cooperating components:
//
//   - ManifestFetcher retrieves and tolerantly parses a repository's
//     JSON/YAML listing of available extensions.
//   - TransferManager downloads installable packages and drives the
//     install/uninstall lifecycle through the host installer surface.
//   - install/uninstall monitors confirm the outcome of the host's
//     fire-and-forget install actions by bounded polling.
//   - ModuleLoader locates and loads an installed extension's code
//     through an isolated CodeHost and resolves its entry type.
//   - CapabilityAdapter wraps any loaded instance behind the canonical
//     MusicSource contract using structural (reflection-based)
//     discovery, arity fallback and async call bridging.
//   - UpdateChecker reconciles installed versus remote version codes.
//   - Registry is the single observable source of truth the UI layer
//     consumes, including the memoized instance cache.
//
// Extensions may implement the MusicSource interface exactly, implement
// the structurally similar LegacyTrackProvider interface, or expose
// same-purpose methods under different names and arities. Tolerating
// that drift is the explicit design goal: a misbehaving extension must
// degrade to empty or error results, never crash the host application.
//
// Basic usage:
//
//	registry, err := musicsource.NewRegistry(musicsource.RegistryOptions{
//	    Host:      hostPackages,
//	    CodeHost:  musicsource.NewPluginCodeHost(),
//	    Logger:    logger,
//	    CacheDir:  "/var/cache/musicsource",
//	    StatePath: "/etc/musicsource/state.json",
//	})
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	registry.AddRepository(ctx, "https://example.com/repo")
//	registry.Refresh(ctx)
//
//	src, err := registry.Instance(ctx, "com.example.source")
//	if err == nil {
//	    tracks, _ := src.Search(ctx, "query", 20, 0)
//	    _ = tracks
//	}
package musicsource
