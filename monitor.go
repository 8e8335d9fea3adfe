// monitor.go: Bounded polling confirmation for asynchronous host actions
//
// The host installer and uninstaller surfaces are asynchronous black
// boxes: triggering them returns immediately and no completion event ever
// arrives. The only way to observe the outcome is to poll host package
// presence. Both the install monitor (waits for presence) and the
// uninstall monitor (waits for absence) are instances of one bounded
// retry primitive so the two call sites cannot drift apart.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"time"
)

// MonitorConfig controls the bounded polling loops that confirm host
// install and uninstall outcomes.
type MonitorConfig struct {
	// Interval between presence probes.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// MaxAttempts bounds the loop; exhausting it is the runtime's only
	// timeout mechanism for host actions.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultMonitorConfig returns the production polling budget: one probe
// per second for thirty seconds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:    1 * time.Second,
		MaxAttempts: 30,
	}
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = 1 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	return c
}

// pollOutcome is the terminal state of one bounded polling run.
type pollOutcome int

const (
	pollSucceeded pollOutcome = iota
	pollExhausted
	pollCancelled
)

// pollUntil probes check at a fixed interval until it reports true, the
// attempt budget is exhausted, or ctx is cancelled.
//
// The first probe runs after one interval, not immediately: the host
// action was triggered a moment ago and cannot have completed yet.
// Returns the outcome and the number of attempts consumed.
func pollUntil(ctx context.Context, config MonitorConfig, check func(context.Context) bool) (pollOutcome, int) {
	config = config.withDefaults()

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return pollCancelled, attempt - 1
		case <-ticker.C:
			if check(ctx) {
				return pollSucceeded, attempt
			}
		}
	}
	return pollExhausted, config.MaxAttempts
}

// presenceProbe performs point-in-time host presence checks with a
// resilience fallback: when the direct lookup errors, an exhaustive scan
// of all installed packages answers instead. Both paths read the same
// authoritative host state; the fallback only guards against flakiness in
// the direct lookup API.
type presenceProbe struct {
	host   HostPackageService
	logger Logger
}

// installed reports whether the package is currently present on the host.
// A probe that fails on both paths counts as "not present" for this
// attempt; the bounded loop retries.
func (p *presenceProbe) installed(ctx context.Context, id string) bool {
	present, err := p.host.IsInstalled(ctx, id)
	if err == nil {
		return present
	}

	p.logger.Debug("Direct presence lookup failed, scanning installed packages",
		"extension_id", id,
		"error", err)

	packages, scanErr := p.host.InstalledPackages(ctx)
	if scanErr != nil {
		p.logger.Warn("Installed package scan failed",
			"extension_id", id,
			"error", scanErr)
		return false
	}
	for _, pkg := range packages {
		if pkg.ID == id {
			return true
		}
	}
	return false
}

// awaitPresence blocks until the host reports the package present, within
// the polling budget.
func (p *presenceProbe) awaitPresence(ctx context.Context, id string, config MonitorConfig) (pollOutcome, int) {
	return pollUntil(ctx, config, func(ctx context.Context) bool {
		return p.installed(ctx, id)
	})
}

// awaitAbsence blocks until the host reports the package gone, within the
// polling budget.
func (p *presenceProbe) awaitAbsence(ctx context.Context, id string, config MonitorConfig) (pollOutcome, int) {
	return pollUntil(ctx, config, func(ctx context.Context) bool {
		return !p.installed(ctx, id)
	})
}
