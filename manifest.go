// manifest.go: Repository manifest fetching and tolerant parsing
//
// A repository is identified by a bare URL; its manifest is a JSON (or
// YAML) document listing the extensions it offers. Manifests come from
// sources the runtime does not control, so parsing is deliberately
// tolerant: unknown fields are ignored and version fields may arrive as
// either strings or bare numbers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultManifestFileName is appended to repository URLs that do not
// already point at a manifest document.
const DefaultManifestFileName = "extensions.json"

// maxManifestBytes bounds how much of a manifest response is read.
const maxManifestBytes = 4 << 20

// flexibleVersion is a version field that tolerates being encoded as a
// JSON/YAML string or a bare number. Known repository generators disagree
// on the encoding, so both are accepted and normalized to a string.
type flexibleVersion string

// UnmarshalJSON implements tolerant decoding for string-or-number versions.
func (v *flexibleVersion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = flexibleVersion(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = flexibleVersion(n.String())
		return nil
	}
	return fmt.Errorf("version is neither string nor number: %s", string(data))
}

// UnmarshalYAML implements tolerant decoding for string-or-number versions.
func (v *flexibleVersion) UnmarshalYAML(node *yaml.Node) error {
	*v = flexibleVersion(node.Value)
	return nil
}

// repositoryManifest is the wire shape of a repository listing.
type repositoryManifest struct {
	Name       string              `json:"name" yaml:"name"`
	Version    flexibleVersion     `json:"version" yaml:"version"`
	Extensions []manifestExtension `json:"extensions" yaml:"extensions"`
}

// manifestExtension is one extension entry as advertised by a repository.
type manifestExtension struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Version        flexibleVersion `json:"version" yaml:"version"`
	Developer      string          `json:"developer,omitempty" yaml:"developer,omitempty"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	DownloadPath   string          `json:"downloadPath,omitempty" yaml:"downloadPath,omitempty"`
	IconURL        string          `json:"iconUrl,omitempty" yaml:"iconUrl,omitempty"`
	SourceURL      string          `json:"sourceUrl,omitempty" yaml:"sourceUrl,omitempty"`
	Permissions    []string        `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	MinHostVersion flexibleVersion `json:"minHostVersion,omitempty" yaml:"minHostVersion,omitempty"`
	Features       []string        `json:"features,omitempty" yaml:"features,omitempty"`
}

// ManifestFetcher retrieves and parses repository manifests.
//
// Fetch has no side effects beyond the network call: it never mutates the
// registry, the caller merges results. A repository whose manifest fails
// to fetch or parse simply contributes zero descriptors until the next
// refresh.
type ManifestFetcher struct {
	client *http.Client
	logger Logger
}

// NewManifestFetcher creates a manifest fetcher using the provided HTTP
// client. A nil client selects a default with a 30 second timeout.
func NewManifestFetcher(client *http.Client, logger Logger) *ManifestFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &ManifestFetcher{client: client, logger: logger}
}

// Fetch retrieves the manifest for repositoryURL and returns the remote
// extension descriptors it advertises.
//
// The repository URL is normalized first: a bare URL gains the
// conventional manifest filename. Parsing tries JSON, then YAML. Each
// descriptor's VersionCode is derived at parse time so later update
// comparison never re-parses version strings.
func (f *ManifestFetcher) Fetch(ctx context.Context, repositoryURL string) ([]RemoteExtensionDescriptor, error) {
	manifestURL, err := NormalizeManifestURL(repositoryURL)
	if err != nil {
		return nil, NewInvalidRepositoryError(repositoryURL)
	}

	data, err := f.download(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	manifest, err := parseManifest(data)
	if err != nil {
		return nil, NewManifestParseError(repositoryURL, err)
	}

	descriptors := make([]RemoteExtensionDescriptor, 0, len(manifest.Extensions))
	for _, ext := range manifest.Extensions {
		if ext.ID == "" {
			f.logger.Warn("Skipping manifest entry without id",
				"repository_url", repositoryURL,
				"name", ext.Name)
			continue
		}
		descriptors = append(descriptors, descriptorFromManifest(ext, repositoryURL))
	}

	f.logger.Debug("Manifest fetched",
		"repository_url", repositoryURL,
		"extensions", len(descriptors))

	return descriptors, nil
}

func (f *ManifestFetcher) download(ctx context.Context, manifestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, NewNetworkError(manifestURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, NewNetworkError(manifestURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("Failed to close manifest response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewNetworkError(manifestURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, NewNetworkError(manifestURL, err)
	}
	return data, nil
}

// NormalizeManifestURL resolves a repository URL to its manifest document
// location, appending the conventional filename when the URL does not
// already point at a document.
func NormalizeManifestURL(repositoryURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(repositoryURL))
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", repositoryURL)
	}

	lower := strings.ToLower(parsed.Path)
	if strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return parsed.String(), nil
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/" + DefaultManifestFileName
	return parsed.String(), nil
}

// parseManifest decodes manifest bytes, trying JSON first and YAML as a
// fallback, matching the formats repositories publish in practice.
func parseManifest(data []byte) (*repositoryManifest, error) {
	var manifest repositoryManifest

	jsonErr := json.Unmarshal(data, &manifest)
	if jsonErr == nil {
		return &manifest, nil
	}

	if yamlErr := yaml.Unmarshal(data, &manifest); yamlErr != nil {
		return nil, fmt.Errorf("manifest is neither valid JSON nor YAML: %w", jsonErr)
	}
	return &manifest, nil
}

// descriptorFromManifest converts a wire entry into an immutable
// descriptor snapshot, resolving relative download paths against the
// repository URL.
func descriptorFromManifest(ext manifestExtension, repositoryURL string) RemoteExtensionDescriptor {
	version := string(ext.Version)
	return RemoteExtensionDescriptor{
		ID:             ext.ID,
		Name:           ext.Name,
		Version:        version,
		VersionCode:    deriveVersionCode(version),
		Developer:      ext.Developer,
		Description:    ext.Description,
		DownloadPath:   resolveDownloadURL(repositoryURL, ext.DownloadPath),
		IconURL:        ext.IconURL,
		SourceURL:      ext.SourceURL,
		Permissions:    ext.Permissions,
		MinHostVersion: string(ext.MinHostVersion),
		Features:       ext.Features,
		RepositoryURL:  repositoryURL,
	}
}

// resolveDownloadURL resolves a possibly-relative download path against
// the repository base URL. Absolute URLs pass through unchanged.
func resolveDownloadURL(repositoryURL, downloadPath string) string {
	if downloadPath == "" {
		return ""
	}
	ref, err := url.Parse(downloadPath)
	if err != nil {
		return downloadPath
	}
	if ref.IsAbs() {
		return downloadPath
	}
	base, err := url.Parse(repositoryURL)
	if err != nil {
		return downloadPath
	}
	return base.ResolveReference(ref).String()
}
