// manifest_test.go: Repository URL normalization and manifest parsing tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeManifestURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare repository URL gains manifest filename", "https://repo.example.com/extensions", "https://repo.example.com/extensions/extensions.json", false},
		{"trailing slash collapses", "https://repo.example.com/extensions/", "https://repo.example.com/extensions/extensions.json", false},
		{"explicit json document passes through", "https://repo.example.com/custom.json", "https://repo.example.com/custom.json", false},
		{"explicit yaml document passes through", "https://repo.example.com/listing.yaml", "https://repo.example.com/listing.yaml", false},
		{"explicit yml document passes through", "https://repo.example.com/listing.yml", "https://repo.example.com/listing.yml", false},
		{"surrounding whitespace tolerated", "  https://repo.example.com/x  ", "https://repo.example.com/x/extensions.json", false},
		{"unsupported scheme rejected", "ftp://repo.example.com/extensions", "", true},
		{"missing host rejected", "https:///extensions", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeManifestURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManifestFetchJSON(t *testing.T) {
	manifest := `{
		"name": "Test Repo",
		"version": "1.0",
		"extensions": [
			{
				"id": "com.example.radio",
				"name": "Radio",
				"version": "1.2.3",
				"developer": "Example Dev",
				"downloadPath": "packages/radio.pkg",
				"permissions": ["network"],
				"minHostVersion": "2.0.0"
			},
			{
				"id": "com.example.numeric",
				"name": "Numeric Version",
				"version": 7
			},
			{
				"name": "No ID, must be skipped",
				"version": "1.0.0"
			}
		]
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extensions.json", r.URL.Path)
		_, _ = w.Write([]byte(manifest))
	}))
	defer server.Close()

	fetcher := NewManifestFetcher(server.Client(), NewTestLogger())
	descriptors, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	radio := descriptors[0]
	assert.Equal(t, "com.example.radio", radio.ID)
	assert.Equal(t, "1.2.3", radio.Version)
	assert.Equal(t, int64(10203), radio.VersionCode)
	assert.Equal(t, server.URL+"/packages/radio.pkg", radio.DownloadPath, "relative download path resolves against the repository URL")
	assert.Equal(t, "2.0.0", radio.MinHostVersion)
	assert.Equal(t, server.URL, radio.RepositoryURL)

	numeric := descriptors[1]
	assert.Equal(t, "7", numeric.Version, "bare number versions normalize to strings")
	assert.Equal(t, int64(7), numeric.VersionCode)
}

func TestManifestFetchYAMLFallback(t *testing.T) {
	manifest := `
name: YAML Repo
version: 1
extensions:
  - id: com.example.tape
    name: Tape
    version: 0.9.1
    downloadPath: https://cdn.example.com/tape.pkg
`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(manifest))
	}))
	defer server.Close()

	fetcher := NewManifestFetcher(server.Client(), NewTestLogger())
	descriptors, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	assert.Equal(t, "com.example.tape", descriptors[0].ID)
	assert.Equal(t, int64(901), descriptors[0].VersionCode)
	assert.Equal(t, "https://cdn.example.com/tape.pkg", descriptors[0].DownloadPath, "absolute download URLs pass through")
}

func TestManifestFetchParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{{{ not a document"))
	}))
	defer server.Close()

	fetcher := NewManifestFetcher(server.Client(), NewTestLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL)
	assertErrorCode(t, err, ErrCodeManifestParse)
}

func TestManifestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewManifestFetcher(server.Client(), NewTestLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL)
	assertErrorCode(t, err, ErrCodeNetworkError)
}

func TestManifestFetchInvalidRepositoryURL(t *testing.T) {
	fetcher := NewManifestFetcher(nil, NewTestLogger())
	_, err := fetcher.Fetch(context.Background(), "not a url")
	assertErrorCode(t, err, ErrCodeInvalidRepository)
}

func TestFlexibleVersionJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string version", `"1.2.3"`, "1.2.3"},
		{"integer version", `5`, "5"},
		{"float version", `1.5`, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v flexibleVersion
			require.NoError(t, v.UnmarshalJSON([]byte(tt.raw)))
			assert.Equal(t, tt.want, string(v))
		})
	}

	var v flexibleVersion
	assert.Error(t, v.UnmarshalJSON([]byte(`["array"]`)))
}
