// loader.go: Dynamic loading of installed extension code
//
// An installed extension ships a code artifact whose entry type name is
// not reliably known: well-behaved packages declare it in their metadata,
// the rest follow loose naming conventions. The loader copies the
// artifact into a private per-process scratch directory, opens it through
// the isolated CodeHost and walks a candidate table until a symbol
// passes structural verification.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// ModuleLoader loads installed extension code and resolves its entry
// instance.
type ModuleLoader struct {
	host     HostPackageService
	codeHost CodeHost
	logger   Logger

	// scratchDir is this process's private copy/output area. Artifacts
	// are copied here before loading so an in-place package update never
	// swaps code under an open module.
	scratchDir string
}

// NewModuleLoader creates a module loader. The scratch directory is
// created lazily on first load.
func NewModuleLoader(host HostPackageService, codeHost CodeHost, logger Logger) *ModuleLoader {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &ModuleLoader{
		host:     host,
		codeHost: codeHost,
		logger:   logger,
	}
}

// Load locates, loads and verifies the entry instance of an installed
// extension. The returned value is the raw instance: it may implement
// MusicSource directly, implement LegacyTrackProvider, or merely expose a
// structurally compatible search method. Adaptation is the
// CapabilityAdapter's job, not the loader's.
func (ml *ModuleLoader) Load(ctx context.Context, id string) (any, error) {
	pkg, err := ml.host.PackageInfo(ctx, id)
	if err != nil {
		return nil, NewPackageMetadataError(id, err)
	}

	localPath, err := ml.stageArtifact(pkg)
	if err != nil {
		return nil, NewModuleOpenError(id, pkg.CodePath, err)
	}

	module, err := ml.codeHost.Open(localPath)
	if err != nil {
		return nil, NewModuleOpenError(id, pkg.CodePath, err)
	}

	candidates := entryCandidates(pkg)
	for _, name := range candidates {
		sym, lookupErr := module.Lookup(name)
		if lookupErr != nil {
			continue
		}
		instance, ok := materializeEntry(sym)
		if !ok {
			continue
		}
		if satisfiesContract(instance) {
			ml.logger.Debug("Extension entry resolved",
				"extension_id", id,
				"entry", name)
			return instance, nil
		}
	}

	return nil, NewClassNotFoundError(id, len(candidates))
}

// stageArtifact copies the package's code artifact into the per-process
// scratch directory and returns the private path to open.
func (ml *ModuleLoader) stageArtifact(pkg HostPackage) (string, error) {
	if ml.scratchDir == "" {
		dir, err := os.MkdirTemp("", "musicsource-modules-")
		if err != nil {
			return "", err
		}
		ml.scratchDir = dir
	}

	staged := filepath.Join(ml.scratchDir,
		fmt.Sprintf("%s-%d%s", sanitizePathComponent(pkg.ID), pkg.VersionCode, filepath.Ext(pkg.CodePath)))

	if _, err := os.Stat(staged); err == nil {
		return staged, nil
	}

	src, err := os.Open(pkg.CodePath) // #nosec G304 - path comes from host package metadata
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) // #nosec G304 - staged path is built from sanitized components
	if err != nil {
		return "", err
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return "", copyErr
	}
	if closeErr != nil {
		return "", closeErr
	}
	return staged, nil
}

// Close removes the per-process scratch directory.
func (ml *ModuleLoader) Close() error {
	if ml.scratchDir == "" {
		return nil
	}
	dir := ml.scratchDir
	ml.scratchDir = ""
	return os.RemoveAll(dir)
}

// entryCandidates builds the ordered table of entry symbol names to try
// for a package: the declared entry class first, then conventional names
// derived from the package id.
func entryCandidates(pkg HostPackage) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}

	add(pkg.EntryClass)

	short := shortName(pkg.ID)
	for _, base := range []string{short, strings.ToUpper(short[:1]) + short[1:]} {
		capitalized := strings.ToUpper(base[:1]) + base[1:]
		add(capitalized + "Extension")
		add(capitalized + "Main")
		add(capitalized + "Provider")
		add("New" + capitalized)
		add(capitalized)
	}

	add("Extension")
	add("Main")
	add("Provider")
	add("NewExtension")
	add("NewProvider")

	return candidates
}

// shortName extracts the final dot-separated segment of a package id:
// "com.example.radio" -> "radio".
func shortName(id string) string {
	segments := strings.Split(id, ".")
	last := segments[len(segments)-1]
	if last == "" {
		return "extension"
	}
	return last
}

// materializeEntry turns a looked-up symbol into a usable instance.
//
// Symbols arrive in three shapes: a ready instance, a pointer to a
// package-level variable holding the instance, or a zero-argument
// constructor returning it (optionally with a trailing error).
func materializeEntry(sym any) (any, bool) {
	if sym == nil {
		return nil, false
	}

	v := reflect.ValueOf(sym)

	if v.Kind() == reflect.Func {
		t := v.Type()
		if t.NumIn() != 0 || t.NumOut() < 1 || t.NumOut() > 2 {
			return nil, false
		}
		results := v.Call(nil)
		if len(results) == 2 {
			if err, ok := results[1].Interface().(error); ok && err != nil {
				return nil, false
			}
		}
		out := results[0]
		if !out.IsValid() || (out.Kind() == reflect.Ptr && out.IsNil()) || (out.Kind() == reflect.Interface && out.IsNil()) {
			return nil, false
		}
		return out.Interface(), true
	}

	// A pointer to an interface-typed variable unwraps to the value it
	// holds; a pointer to a struct is the instance itself (methods are
	// usually declared on the pointer receiver).
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Interface {
		inner := v.Elem()
		if inner.IsNil() {
			return nil, false
		}
		return inner.Interface(), true
	}

	return sym, true
}

// satisfiesContract verifies a candidate instance structurally: the
// canonical contract, the recognizable legacy contract, or a method
// literally named "search" (any casing) with a plausible arity.
func satisfiesContract(instance any) bool {
	if instance == nil {
		return false
	}
	if _, ok := instance.(MusicSource); ok {
		return true
	}
	if _, ok := instance.(LegacyTrackProvider); ok {
		return true
	}
	return hasSearchShapedMethod(instance)
}

// hasSearchShapedMethod reports whether the instance exposes a
// search-named method taking between one and four arguments (query plus
// optional context/limit/offset).
func hasSearchShapedMethod(instance any) bool {
	v := reflect.ValueOf(instance)
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.EqualFold(m.Name, "search") {
			continue
		}
		// NumIn includes the receiver for methods obtained from a type.
		in := m.Type.NumIn() - 1
		if in >= 1 && in <= 4 {
			return true
		}
	}
	return false
}
