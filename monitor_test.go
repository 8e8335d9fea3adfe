// monitor_test.go: Bounded polling and presence probe tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func fastMonitor() MonitorConfig {
	return MonitorConfig{Interval: 2 * time.Millisecond, MaxAttempts: 5}
}

func TestPollUntilSucceedsOnNthAttempt(t *testing.T) {
	var calls int32
	outcome, attempts := pollUntil(context.Background(), fastMonitor(), func(ctx context.Context) bool {
		return atomic.AddInt32(&calls, 1) >= 3
	})

	if outcome != pollSucceeded {
		t.Fatalf("Expected pollSucceeded, got %v", outcome)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestPollUntilExhaustsBudget(t *testing.T) {
	var calls int32
	outcome, attempts := pollUntil(context.Background(), fastMonitor(), func(ctx context.Context) bool {
		atomic.AddInt32(&calls, 1)
		return false
	})

	if outcome != pollExhausted {
		t.Fatalf("Expected pollExhausted, got %v", outcome)
	}
	if attempts != 5 {
		t.Errorf("Expected the full budget of 5 attempts, got %d", attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("Expected exactly 5 probes, got %d", got)
	}
}

func TestPollUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, _ := pollUntil(ctx, MonitorConfig{Interval: time.Minute, MaxAttempts: 3}, func(ctx context.Context) bool {
		t.Error("Probe must not run after cancellation")
		return false
	})

	if outcome != pollCancelled {
		t.Fatalf("Expected pollCancelled, got %v", outcome)
	}
}

func TestPollUntilDefaultsApplied(t *testing.T) {
	// A zero config must not spin: withDefaults supplies the production
	// budget. Succeeding on the first probe keeps the test fast.
	outcome, attempts := pollUntil(context.Background(), MonitorConfig{}, func(ctx context.Context) bool {
		return true
	})
	if outcome != pollSucceeded || attempts != 1 {
		t.Fatalf("Expected first-probe success, got outcome=%v attempts=%d", outcome, attempts)
	}
}

func TestPresenceProbeDirectLookup(t *testing.T) {
	host := newFakeHost()
	host.addPackage(HostPackage{ID: "com.example.radio"})
	probe := &presenceProbe{host: host, logger: NewTestLogger()}

	if !probe.installed(context.Background(), "com.example.radio") {
		t.Error("Expected installed package to be reported present")
	}
	if probe.installed(context.Background(), "com.example.missing") {
		t.Error("Expected missing package to be reported absent")
	}
}

func TestPresenceProbeFallsBackToScan(t *testing.T) {
	host := newFakeHost()
	host.addPackage(HostPackage{ID: "com.example.radio"})
	host.isInstalledErr = fmt.Errorf("direct lookup flaking")
	probe := &presenceProbe{host: host, logger: NewTestLogger()}

	if !probe.installed(context.Background(), "com.example.radio") {
		t.Error("Expected the list scan to find the package when direct lookup fails")
	}
}

func TestPresenceProbeBothPathsFail(t *testing.T) {
	host := newFakeHost()
	host.isInstalledErr = fmt.Errorf("direct lookup down")
	host.listErr = fmt.Errorf("list down")
	logger := NewTestLogger()
	probe := &presenceProbe{host: host, logger: logger}

	if probe.installed(context.Background(), "com.example.radio") {
		t.Error("A probe failing on both paths counts as not present")
	}
	if !logger.HasMessage("WARN", "Installed package scan failed") {
		t.Error("Expected the scan failure to be logged")
	}
}

func TestAwaitPresenceAndAbsence(t *testing.T) {
	host := newFakeHost()
	probe := &presenceProbe{host: host, logger: NewTestLogger()}

	// Package appears after the trigger, as a real host install would.
	go func() {
		time.Sleep(4 * time.Millisecond)
		host.addPackage(HostPackage{ID: "com.example.radio"})
	}()

	outcome, _ := probe.awaitPresence(context.Background(), "com.example.radio", MonitorConfig{Interval: 2 * time.Millisecond, MaxAttempts: 50})
	if outcome != pollSucceeded {
		t.Fatalf("Expected presence to be confirmed, got %v", outcome)
	}

	go func() {
		time.Sleep(4 * time.Millisecond)
		host.removePackage("com.example.radio")
	}()

	outcome, _ = probe.awaitAbsence(context.Background(), "com.example.radio", MonitorConfig{Interval: 2 * time.Millisecond, MaxAttempts: 50})
	if outcome != pollSucceeded {
		t.Fatalf("Expected absence to be confirmed, got %v", outcome)
	}
}
