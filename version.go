// version.go: Version string parsing and comparable version codes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// versionComponentCap saturates each dotted component before it is folded
// into the code. Without the cap a component >= 100 would bleed into the
// next decimal column and misorder against neighboring versions.
const versionComponentCap = 99

// deriveVersionCode derives a comparable integer code from a version
// string.
//
// Supported forms:
//   - plain integers ("42") pass through unchanged
//   - dotted major/minor/patch forms ("1.2.3", "v1.2", "1.0.0-beta")
//     become major*10000 + minor*100 + patch
//
// Pre-release and build qualifiers are discarded: "1.0.0-beta" and
// "1.0.0" derive the same code. Unparseable strings derive 0, which
// compares lower than any real version so a malformed remote entry never
// masquerades as an update.
func deriveVersionCode(version string) int64 {
	v := strings.TrimSpace(version)
	if v == "" {
		return 0
	}

	if code, err := strconv.ParseInt(v, 10, 64); err == nil {
		return code
	}

	parsed, err := semver.NewVersion(v)
	if err != nil {
		return 0
	}

	major := capComponent(parsed.Major())
	minor := capComponent(parsed.Minor())
	patch := capComponent(parsed.Patch())

	return major*10000 + minor*100 + patch
}

func capComponent(c uint64) int64 {
	if c > versionComponentCap {
		return versionComponentCap
	}
	return int64(c)
}

// compareVersionCodes reports whether remote is strictly newer than
// installed. Equal codes are never an update: pre-release drift alone
// must not trigger a reinstall loop.
func compareVersionCodes(remote, installed int64) bool {
	return remote > installed
}
