// adapter.go: Structural discovery and call bridging for loaded extensions
//
// The capability adapter is what lets the runtime tolerate extensions it
// does not control. Given any raw loaded instance it produces a
// MusicSource: conforming instances pass through, the legacy contract is
// bridged directly, and everything else goes through two reflective
// stages. Discovery is pure data (which method, what arity, what async
// shape); invocation is pure behavior (call, unwrap, map). The stages are
// split so each is unit-testable against a fake raw instance.
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
	"reflect"
	"strings"
	"sync"
	"time"
)

// operationSpec names one canonical operation and the method names an
// extension may expose it under, exact candidates first. The tables are
// data, not code: accepting a new synonym is a table edit.
type operationSpec struct {
	operation string
	names     []string
}

var (
	searchOperation = operationSpec{
		operation: "search",
		names: []string{
			"Search",
			"SearchTracks", "SearchSongs", "FindTracks",
			"Find", "Query", "Lookup", "QueryTracks",
		},
	}

	resolveOperation = operationSpec{
		operation: "resolvePlayableLocation",
		names: []string{
			"ResolvePlayableLocation",
			"GetStreamUrl", "GetStreamURL", "StreamUrl", "StreamURL",
			"ResolveStream", "GetPlayUrl", "GetUrl", "Resolve",
		},
	}

	artworkOperation = operationSpec{
		operation: "fetchArtwork",
		names: []string{
			"FetchArtwork",
			"GetArtwork", "GetCover", "FetchCover", "GetCoverArt",
			"LoadImage", "FetchImage",
		},
	}
)

// asyncShape classifies how a foreign method delivers its result.
type asyncShape int

const (
	// asyncNone: plain synchronous return values.
	asyncNone asyncShape = iota
	// asyncCallback: the last parameter is a callback receiving the result.
	asyncCallback
	// asyncChannel: the first return value is a receive channel.
	asyncChannel
)

// methodProbe is the discovery stage's output: everything the invocation
// stage needs to call one method, and nothing behavioral.
type methodProbe struct {
	Name         string
	Method       reflect.Value
	WantsContext bool
	Async        asyncShape

	// ValueSlots is the number of parameters available for operation
	// arguments, context and callback slots excluded.
	ValueSlots int
}

// probeMethod locates a same-purpose method on the raw instance for one
// operation: exact/synonym names in table order, case-insensitively, the
// first name that exists wins. Returns nil when nothing matches.
func probeMethod(raw any, spec operationSpec) *methodProbe {
	v := reflect.ValueOf(raw)
	if !v.IsValid() {
		return nil
	}
	t := v.Type()

	for _, wanted := range spec.names {
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if !strings.EqualFold(m.Name, wanted) {
				continue
			}
			probe := describeMethod(m.Name, v.Method(i))
			if probe != nil {
				return probe
			}
		}
	}
	return nil
}

// describeMethod inspects a bound method's parameter list and return
// shape. Sync versus async is decided structurally: a trailing func
// parameter marks a callback style, a leading channel return marks a
// channel style.
func describeMethod(name string, method reflect.Value) *methodProbe {
	t := method.Type()

	probe := &methodProbe{Name: name, Method: method}

	slots := t.NumIn()
	if slots > 0 && t.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
		probe.WantsContext = true
		slots--
	}
	if t.NumIn() > 0 && t.In(t.NumIn()-1).Kind() == reflect.Func {
		probe.Async = asyncCallback
		slots--
	} else if t.NumOut() > 0 && t.Out(0).Kind() == reflect.Chan {
		probe.Async = asyncChannel
	}

	if slots < 0 {
		return nil
	}
	probe.ValueSlots = slots
	return probe
}

// asyncBridge runs foreign blocking calls on its own goroutines so a
// misbehaving extension can never starve the pool serving interactive
// callers. The adapter's public methods stay cancellable: they wait on
// the bridge result or ctx, whichever comes first.
type asyncBridge struct {
	tasks    chan func()
	quit     chan struct{}
	quitOnce sync.Once
	logger   Logger
}

// newAsyncBridge starts a bridge with the given number of workers.
func newAsyncBridge(workers int, logger Logger) *asyncBridge {
	if workers <= 0 {
		workers = 4
	}
	b := &asyncBridge{
		tasks:  make(chan func(), workers*4),
		quit:   make(chan struct{}),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	return b
}

func (b *asyncBridge) worker() {
	for {
		select {
		case <-b.quit:
			return
		case task := <-b.tasks:
			func() {
				defer withStackRecover(b.logger)()
				task()
			}()
		}
	}
}

// run executes fn on a bridge worker and waits for it or ctx. When ctx
// wins, the worker keeps running to completion in the background; its
// result is discarded. A closed bridge rejects the call instead.
func (b *asyncBridge) run(ctx context.Context, fn func() (any, error)) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	select {
	case b.tasks <- func() {
		value, err := fn()
		done <- outcome{value: value, err: err}
	}:
	case <-b.quit:
		return nil, NewRegistryClosedError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-b.quit:
		// The task may still be queued; a stopped worker will never run
		// it, so the caller cannot keep waiting on done.
		return nil, NewRegistryClosedError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops the workers. The task channel stays open so a caller
// racing close can never panic on send; its run returns an error through
// the quit channel instead. Tasks already started finish.
func (b *asyncBridge) close() {
	b.quitOnce.Do(func() { close(b.quit) })
}

// CapabilityAdapter exposes an arbitrary raw extension instance through
// the canonical MusicSource contract.
//
// Failure policy: any introspection or invocation failure degrades to an
// empty or error result for that single call. Nothing propagates a panic
// past the adapter boundary; one misbehaving extension must never crash
// the host application.
type CapabilityAdapter struct {
	raw    any
	bridge *asyncBridge
	logger Logger
	client *http.Client

	searchProbe  *methodProbe
	resolveProbe *methodProbe
	artworkProbe *methodProbe
}

// Adapt wraps a raw loaded instance behind the MusicSource contract.
//
// Conforming instances are returned as-is; LegacyTrackProvider instances
// get a thin typed bridge; everything else gets the full reflective
// adapter with discovery performed once, up front.
func Adapt(raw any, bridge *asyncBridge, logger Logger) MusicSource {
	if logger == nil {
		logger = DefaultLogger()
	}
	if ms, ok := raw.(MusicSource); ok {
		return ms
	}
	if legacy, ok := raw.(LegacyTrackProvider); ok {
		return &legacyAdapter{provider: legacy, client: defaultArtworkClient()}
	}
	return &CapabilityAdapter{
		raw:          raw,
		bridge:       bridge,
		logger:       logger,
		client:       defaultArtworkClient(),
		searchProbe:  probeMethod(raw, searchOperation),
		resolveProbe: probeMethod(raw, resolveOperation),
		artworkProbe: probeMethod(raw, artworkOperation),
	}
}

func defaultArtworkClient() *http.Client {
	return &http.Client{Timeout: 20 * time.Second}
}

// Search implements MusicSource by bridging to whatever search-shaped
// method the raw instance exposes.
func (a *CapabilityAdapter) Search(ctx context.Context, query string, limit, offset int) ([]TrackDescriptor, error) {
	if a.searchProbe == nil {
		return nil, NewAdapterNoMethodError(searchOperation.operation, searchOperation.names)
	}

	result, err := a.invoke(ctx, a.searchProbe, query, limit, offset)
	if err != nil {
		a.logger.Warn("Extension search failed",
			"method", a.searchProbe.Name,
			"error", err)
		return []TrackDescriptor{}, err
	}

	payload, err := unwrapResult(searchOperation.operation, result)
	if err != nil {
		return []TrackDescriptor{}, err
	}
	return mapTracks(payload), nil
}

// ResolvePlayableLocation implements MusicSource.
func (a *CapabilityAdapter) ResolvePlayableLocation(ctx context.Context, mediaID string) (string, error) {
	if a.resolveProbe == nil {
		return "", NewAdapterNoMethodError(resolveOperation.operation, resolveOperation.names)
	}

	result, err := a.invoke(ctx, a.resolveProbe, mediaID)
	if err != nil {
		return "", err
	}

	payload, err := unwrapResult(resolveOperation.operation, result)
	if err != nil {
		return "", err
	}
	location := mapLocation(payload)
	if location == "" {
		return "", NewAdapterInvocationError(resolveOperation.operation,
			fmt.Errorf("no playable location in result of type %T", payload))
	}
	return location, nil
}

// FetchArtwork implements MusicSource. When the raw instance exposes no
// artwork method, the adapter degrades to fetching the URL itself.
func (a *CapabilityAdapter) FetchArtwork(ctx context.Context, url string) ([]byte, error) {
	if a.artworkProbe != nil {
		result, err := a.invoke(ctx, a.artworkProbe, url)
		if err == nil {
			payload, unwrapErr := unwrapResult(artworkOperation.operation, result)
			if unwrapErr == nil {
				if bytes := mapArtwork(payload); bytes != nil {
					return bytes, nil
				}
			}
		}
		a.logger.Debug("Extension artwork method unusable, fetching directly",
			"method", a.artworkProbe.Name)
	}
	return fetchArtworkHTTP(ctx, a.client, url)
}

// invoke is the invocation stage: call the probed method with the best
// matching arity, bridging asynchronous shapes through the bridge pool.
//
// Arity fallback tries the full argument list first, then progressively
// fewer arguments, accepting the first shape the method's signature can
// take. Extensions that never grew an offset parameter therefore still
// work with the 2-argument shape.
func (a *CapabilityAdapter) invoke(ctx context.Context, probe *methodProbe, args ...any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewAdapterInvocationError(probe.Name, fmt.Errorf("panic in extension call: %v", r))
		}
	}()

	callArgs, err := fitArguments(probe, args)
	if err != nil {
		return nil, NewAdapterInvocationError(probe.Name, err)
	}

	switch probe.Async {
	case asyncCallback:
		return a.invokeCallback(ctx, probe, callArgs)
	case asyncChannel:
		return a.invokeChannel(ctx, probe, callArgs)
	default:
		call := guardedCall(probe.Name, func() (any, error) {
			return callAndSplit(probe, callArgs, ctx)
		})
		if a.bridge == nil {
			return call()
		}
		return a.bridge.run(ctx, call)
	}
}

// guardedCall wraps a foreign call so a panic becomes an error result on
// the goroutine that performed the call. Without this a panic on a
// bridge worker would be swallowed by the worker's recovery and the
// waiting caller would never receive a result.
func guardedCall(name string, fn func() (any, error)) func() (any, error) {
	return func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = NewAdapterInvocationError(name, fmt.Errorf("panic in extension call: %v", r))
			}
		}()
		return fn()
	}
}

// fitArguments converts the operation arguments to the method's declared
// parameter types, dropping trailing arguments until the count fits.
func fitArguments(probe *methodProbe, args []any) ([]reflect.Value, error) {
	t := probe.Method.Type()

	for take := minInt(len(args), probe.ValueSlots); take >= 0; take-- {
		if fitted, ok := convertArguments(probe, args[:take]); ok {
			return fitted, nil
		}
	}

	return nil, fmt.Errorf("no invocation shape fits %s%s with %d arguments",
		probe.Name, t.String(), len(args))
}

// convertArguments builds the reflect argument list for one candidate
// shape, reporting false when any value cannot be converted to the
// declared parameter type.
func convertArguments(probe *methodProbe, args []any) ([]reflect.Value, bool) {
	t := probe.Method.Type()

	expected := len(args)
	if probe.WantsContext {
		expected++
	}
	if probe.Async == asyncCallback {
		expected++
	}
	if !t.IsVariadic() && t.NumIn() != expected {
		return nil, false
	}
	if t.IsVariadic() && expected < t.NumIn()-1 {
		return nil, false
	}

	out := make([]reflect.Value, 0, expected)
	paramIndex := 0
	if probe.WantsContext {
		paramIndex++ // filled in by the caller with the real context
		out = append(out, reflect.Value{})
	}

	for _, arg := range args {
		paramType := paramTypeAt(t, paramIndex)
		converted, ok := convertValue(arg, paramType)
		if !ok {
			return nil, false
		}
		out = append(out, converted)
		paramIndex++
	}
	return out, true
}

func paramTypeAt(t reflect.Type, index int) reflect.Type {
	if t.IsVariadic() && index >= t.NumIn()-1 {
		return t.In(t.NumIn() - 1).Elem()
	}
	return t.In(index)
}

func convertValue(arg any, target reflect.Type) (reflect.Value, bool) {
	v := reflect.ValueOf(arg)
	if !v.IsValid() {
		return reflect.Zero(target), true
	}
	if v.Type().AssignableTo(target) {
		return v, true
	}
	if v.Type().ConvertibleTo(target) {
		// Numeric widening only; string<->[]byte style conversions are
		// fine, but converting int to string would mangle the value.
		if v.Kind() == reflect.Int && target.Kind() == reflect.String {
			return reflect.Value{}, false
		}
		return v.Convert(target), true
	}
	return reflect.Value{}, false
}

// callAndSplit performs the reflective call and folds a trailing error
// return into the error result.
func callAndSplit(probe *methodProbe, args []reflect.Value, ctx context.Context) (any, error) {
	finalArgs := fillContext(probe, args, ctx)

	results := probe.Method.Call(finalArgs)
	if len(results) == 0 {
		return nil, nil
	}

	last := results[len(results)-1]
	if last.Type() == reflect.TypeOf((*error)(nil)).Elem() {
		if !last.IsNil() {
			return nil, NewAdapterInvocationError(probe.Name, last.Interface().(error))
		}
		results = results[:len(results)-1]
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Interface(), nil
}

func fillContext(probe *methodProbe, args []reflect.Value, ctx context.Context) []reflect.Value {
	if !probe.WantsContext {
		return args
	}
	out := make([]reflect.Value, len(args))
	copy(out, args)
	out[0] = reflect.ValueOf(ctx)
	return out
}

// invokeCallback bridges a callback-style foreign call: a callback of the
// declared type is synthesized, the call runs on the bridge pool and the
// adapter waits for the callback or ctx.
func (a *CapabilityAdapter) invokeCallback(ctx context.Context, probe *methodProbe, args []reflect.Value) (any, error) {
	t := probe.Method.Type()
	callbackType := t.In(t.NumIn() - 1)

	done := make(chan any, 1)
	callback := reflect.MakeFunc(callbackType, func(results []reflect.Value) []reflect.Value {
		var payload any
		if len(results) > 0 {
			payload = results[0].Interface()
		}
		select {
		case done <- payload:
		default:
		}
		return makeZeroResults(callbackType)
	})

	run := guardedCall(probe.Name, func() (any, error) {
		callArgs := append(fillContext(probe, args, ctx), callback)
		probe.Method.Call(callArgs)
		return nil, nil
	})

	if a.bridge != nil {
		if _, err := a.bridge.run(ctx, run); err != nil {
			return nil, err
		}
	} else if _, err := run(); err != nil {
		return nil, err
	}

	select {
	case payload := <-done:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func makeZeroResults(fnType reflect.Type) []reflect.Value {
	out := make([]reflect.Value, fnType.NumOut())
	for i := range out {
		out[i] = reflect.Zero(fnType.Out(i))
	}
	return out
}

// invokeChannel bridges a channel-returning foreign call: the call itself
// and the receive both happen on the bridge pool.
func (a *CapabilityAdapter) invokeChannel(ctx context.Context, probe *methodProbe, args []reflect.Value) (any, error) {
	run := guardedCall(probe.Name, func() (any, error) {
		finalArgs := fillContext(probe, args, ctx)
		results := probe.Method.Call(finalArgs)
		if len(results) == 0 {
			return nil, nil
		}
		ch := results[0]
		if ch.Kind() != reflect.Chan {
			return results[0].Interface(), nil
		}
		received, ok := ch.Recv()
		if !ok {
			return nil, NewAdapterInvocationError(probe.Name, fmt.Errorf("result channel closed without value"))
		}
		return received.Interface(), nil
	})

	if a.bridge != nil {
		return a.bridge.run(ctx, run)
	}
	return run()
}

// legacyAdapter bridges the recognizable alternate contract onto the
// canonical one without reflection.
type legacyAdapter struct {
	provider LegacyTrackProvider
	client   *http.Client
}

func (l *legacyAdapter) Search(ctx context.Context, query string, limit, offset int) ([]TrackDescriptor, error) {
	_ = offset // the legacy contract never grew pagination offsets
	result, err := guardedCall(searchOperation.operation, func() (any, error) {
		tracks, err := l.provider.FindTracks(query, limit)
		if err != nil {
			return nil, NewAdapterInvocationError(searchOperation.operation, err)
		}
		return tracks, nil
	})()
	if err != nil {
		return []TrackDescriptor{}, err
	}
	tracks, _ := result.([]TrackDescriptor)
	if tracks == nil {
		tracks = []TrackDescriptor{}
	}
	return tracks, nil
}

func (l *legacyAdapter) ResolvePlayableLocation(ctx context.Context, mediaID string) (string, error) {
	result, err := guardedCall(resolveOperation.operation, func() (any, error) {
		location, err := l.provider.GetStreamUrl(mediaID)
		if err != nil {
			return nil, NewAdapterInvocationError(resolveOperation.operation, err)
		}
		return location, nil
	})()
	if err != nil {
		return "", err
	}
	location, _ := result.(string)
	return location, nil
}

func (l *legacyAdapter) FetchArtwork(ctx context.Context, url string) ([]byte, error) {
	return fetchArtworkHTTP(ctx, l.client, url)
}

// fetchArtworkHTTP is the shared direct artwork fetch used when an
// extension offers no artwork capability of its own.
func fetchArtworkHTTP(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewNetworkError(url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewNetworkError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewNetworkError(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
