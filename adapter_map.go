// adapter_map.go: Result unwrapping and field mapping for adapted calls
//
// Raw extension calls return values in shapes the runtime does not
// control: bare payloads, tagged success/error/loading wrappers, structs
// or maps with drifting field names. This file detects wrapper shapes
// structurally and maps payloads onto the canonical result types through
// ordered synonym tables. The tables are data, not code: accepting a new
// source field name is a table edit, never a new code path.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"reflect"
	"strings"
)

// Wrapper type-name markers, matched case-insensitively against the
// concrete type name of a raw result.
var (
	errorTypeMarkers   = []string{"error", "failure", "failed"}
	successTypeMarkers = []string{"success", "result", "resource", "response", "loading", "wrapper", "outcome"}
)

// Accessor/field names tried, in order, when extracting a wrapper's
// payload or diagnostic message.
var (
	payloadAccessors = []string{"data", "value", "result", "payload", "items", "content"}
	messageAccessors = []string{"message", "msg", "error", "reason", "cause", "description"}
)

// Per-target-field ordered synonym tables for track mapping.
var (
	trackIDSynonyms       = []string{"id", "trackId", "mediaId", "songId", "identifier", "key"}
	trackTitleSynonyms    = []string{"title", "name", "trackName", "songName", "track"}
	trackArtistSynonyms   = []string{"artist", "artistName", "singer", "author", "performer"}
	trackAlbumSynonyms    = []string{"album", "albumName", "albumTitle", "collection"}
	trackDurationSynonyms = []string{"durationMillis", "durationMs", "duration", "length", "durationSeconds", "seconds"}
	trackArtworkSynonyms  = []string{"artworkUrl", "coverUrl", "cover", "imageUrl", "image", "thumbnail", "albumArt", "icon"}
	trackStreamSynonyms   = []string{"streamUrl", "playUrl", "mediaUrl", "url", "location", "source"}

	locationSynonyms = []string{"url", "streamUrl", "location", "playUrl", "link", "uri"}
)

// durationSecondsThreshold decides the seconds-versus-milliseconds
// heuristic: durations below it are plausibly seconds and get rescaled.
// Real tracks in milliseconds start around 30000; in seconds they rarely
// exceed a few thousand.
const durationSecondsThreshold = 10000

// UnknownArtist is the default artist for tracks whose source exposes no
// artist field under any accepted name.
const UnknownArtist = "Unknown Artist"

// unwrapResult extracts the inner payload from a possibly-wrapped raw
// result.
//
// Detection is structural, in order:
//  1. nil stays nil.
//  2. a type whose name carries an error marker becomes an
//     ExtensionFailureError carrying whatever diagnostic text the
//     message accessors yield.
//  3. a type whose name carries a success marker, or that exposes a
//     payload accessor, yields the accessor's value.
//  4. anything else is used directly.
func unwrapResult(operation string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	orig := reflect.ValueOf(raw)
	v := concreteValue(orig)
	if !v.IsValid() {
		return nil, nil
	}
	typeName := strings.ToLower(v.Type().Name())

	if matchesMarker(typeName, errorTypeMarkers) {
		message := extractString(orig, messageAccessors)
		if message == "" {
			message = "extension returned " + v.Type().String()
		}
		return nil, NewExtensionFailureError(operation, message)
	}

	if matchesMarker(typeName, successTypeMarkers) {
		if payload, ok := extractAccessor(orig, payloadAccessors); ok {
			return payload, nil
		}
		// A success wrapper without a recognizable payload accessor is
		// used as-is; the field mapper may still make sense of it.
		return raw, nil
	}

	if payload, ok := extractAccessor(orig, payloadAccessors); ok {
		return payload, nil
	}
	return raw, nil
}

func matchesMarker(typeName string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(typeName, marker) {
			return true
		}
	}
	return false
}

// mapTracks maps an unwrapped payload onto canonical track descriptors.
// Unmappable payloads yield an empty slice; element order is preserved.
func mapTracks(payload any) []TrackDescriptor {
	if payload == nil {
		return []TrackDescriptor{}
	}

	if tracks, ok := payload.([]TrackDescriptor); ok {
		return tracks
	}

	v := concreteValue(reflect.ValueOf(payload))
	if !v.IsValid() {
		return []TrackDescriptor{}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]TrackDescriptor, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			out = append(out, mapTrack(v.Index(i).Interface()))
		}
		return out
	case reflect.Struct, reflect.Map:
		// A single item degrades to a one-element result.
		return []TrackDescriptor{mapTrack(payload)}
	default:
		return []TrackDescriptor{}
	}
}

// mapTrack maps one raw element (struct, pointer, map or ready
// descriptor) onto a TrackDescriptor field by field through the synonym
// tables, applying defaults where no source field matches.
func mapTrack(element any) TrackDescriptor {
	if track, ok := element.(TrackDescriptor); ok {
		return track
	}
	if track, ok := element.(*TrackDescriptor); ok && track != nil {
		return *track
	}

	v := reflect.ValueOf(element)

	track := TrackDescriptor{
		ID:         extractString(v, trackIDSynonyms),
		Title:      extractString(v, trackTitleSynonyms),
		Artist:     extractString(v, trackArtistSynonyms),
		Album:      extractString(v, trackAlbumSynonyms),
		ArtworkURL: extractString(v, trackArtworkSynonyms),
		StreamURL:  extractString(v, trackStreamSynonyms),
	}

	if track.Title == "" {
		track.Title = "Unknown"
	}
	if track.Artist == "" {
		track.Artist = UnknownArtist
	}

	if duration, ok := extractInt(v, trackDurationSynonyms); ok {
		track.DurationMillis = normalizeDuration(duration)
	}

	return track
}

// normalizeDuration heuristically rescales second-magnitude durations to
// milliseconds.
func normalizeDuration(duration int64) int64 {
	if duration > 0 && duration < durationSecondsThreshold {
		return duration * 1000
	}
	return duration
}

// mapLocation maps an unwrapped payload onto a playable location string.
func mapLocation(payload any) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload.(string); ok {
		return s
	}
	v := concreteValue(reflect.ValueOf(payload))
	if v.IsValid() && v.Kind() == reflect.String {
		return v.String()
	}
	return extractString(v, locationSynonyms)
}

// mapArtwork maps an unwrapped payload onto raw image bytes.
func mapArtwork(payload any) []byte {
	switch data := payload.(type) {
	case []byte:
		return data
	case string:
		if data == "" {
			return nil
		}
		return []byte(data)
	}
	v := concreteValue(reflect.ValueOf(payload))
	if v.IsValid() && v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return v.Bytes()
	}
	if v.IsValid() {
		if data, ok := extractAccessor(v, payloadAccessors); ok {
			if bytes, isBytes := data.([]byte); isBytes {
				return bytes
			}
		}
	}
	return nil
}

// concreteValue unwraps pointers and interfaces down to the underlying
// value.
func concreteValue(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// extractAccessor tries each accessor name in order against the value:
// zero-argument methods first (pointer receivers included when the value
// arrived as a pointer), then exported struct fields, then map keys, all
// case-insensitively.
func extractAccessor(v reflect.Value, names []string) (any, bool) {
	if !v.IsValid() {
		return nil, false
	}
	deref := concreteValue(v)

	for _, name := range names {
		if result, ok := callAccessorMethod(v, name); ok {
			return result, true
		}
		if result, ok := readField(deref, name); ok {
			return result, true
		}
		if result, ok := readMapKey(deref, name); ok {
			return result, true
		}
	}
	return nil, false
}

func callAccessorMethod(v reflect.Value, name string) (any, bool) {
	candidates := []reflect.Value{v}
	if v.Kind() != reflect.Ptr && v.CanAddr() {
		candidates = append(candidates, v.Addr())
	}

	for _, candidate := range candidates {
		if (candidate.Kind() == reflect.Ptr || candidate.Kind() == reflect.Interface) && candidate.IsNil() {
			continue
		}
		t := candidate.Type()
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if !accessorNameMatches(m.Name, name) {
				continue
			}
			if m.Type.NumIn() != 1 || m.Type.NumOut() < 1 {
				continue
			}
			results := candidate.Method(i).Call(nil)
			return results[0].Interface(), true
		}
	}
	return nil, false
}

// accessorNameMatches accepts the bare accessor name and its Get-prefixed
// form: "data" matches Data and GetData.
func accessorNameMatches(methodName, accessor string) bool {
	if strings.EqualFold(methodName, accessor) {
		return true
	}
	return strings.EqualFold(methodName, "get"+accessor)
}

func readField(v reflect.Value, name string) (any, bool) {
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, name) {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

func readMapKey(v reflect.Value, name string) (any, bool) {
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	for _, key := range v.MapKeys() {
		if strings.EqualFold(key.String(), name) {
			entry := v.MapIndex(key)
			if !entry.IsValid() {
				return nil, false
			}
			return entry.Interface(), true
		}
	}
	return nil, false
}

// extractString resolves the first synonym that yields a non-empty
// string-convertible value.
func extractString(v reflect.Value, names []string) string {
	for _, name := range names {
		raw, ok := extractOne(v, name)
		if !ok {
			continue
		}
		if s := stringify(raw); s != "" {
			return s
		}
	}
	return ""
}

// extractInt resolves the first synonym that yields an integer-like
// value.
func extractInt(v reflect.Value, names []string) (int64, bool) {
	for _, name := range names {
		raw, ok := extractOne(v, name)
		if !ok {
			continue
		}
		if n, isInt := intify(raw); isInt {
			return n, true
		}
	}
	return 0, false
}

func extractOne(v reflect.Value, name string) (any, bool) {
	return extractAccessor(v, []string{name})
}

func stringify(raw any) string {
	switch s := raw.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	rv := concreteValue(reflect.ValueOf(raw))
	if rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String()
	}
	return ""
}

func intify(raw any) (int64, bool) {
	rv := concreteValue(reflect.ValueOf(raw))
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true // #nosec G115 - durations never approach the overflow boundary
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), true
	default:
		return 0, false
	}
}
