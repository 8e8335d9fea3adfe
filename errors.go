// errors.go: structured error definitions for the go-musicsource runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package musicsource

import (
	"github.com/agilira/go-errors"
)

// Error codes for the go-musicsource runtime
const (
	// Network and manifest errors (1000-1099)
	ErrCodeNetworkError       = "NET_1001"
	ErrCodeManifestParse      = "MANIFEST_1002"
	ErrCodeManifestInvalid    = "MANIFEST_1003"
	ErrCodeDownloadFailed     = "NET_1004"
	ErrCodeInvalidRepository  = "MANIFEST_1005"
	ErrCodeDuplicateRepo      = "MANIFEST_1006"
	ErrCodeRepositoryNotFound = "MANIFEST_1007"

	// Installation errors (1100-1199)
	ErrCodeInstallTimeout     = "INSTALL_1101"
	ErrCodeInvalidTransition  = "INSTALL_1102"
	ErrCodePackageNotReady    = "INSTALL_1103"
	ErrCodeUninstallAmbiguous = "INSTALL_1104"
	ErrCodeHostTrigger        = "INSTALL_1105"

	// Loading errors (1200-1299)
	ErrCodeClassNotFound    = "LOAD_1201"
	ErrCodeModuleOpenFailed = "LOAD_1202"
	ErrCodePackageMetadata  = "LOAD_1203"

	// Adapter errors (1300-1399)
	ErrCodeAdapterInvocation = "ADAPTER_1301"
	ErrCodeAdapterNoMethod   = "ADAPTER_1302"
	ErrCodeExtensionFailure  = "ADAPTER_1303"

	// Registry errors (1400-1499)
	ErrCodeExtensionNotFound = "REGISTRY_1401"
	ErrCodeRegistryClosed    = "REGISTRY_1402"

	// Persistence errors (1500-1599)
	ErrCodeStateStore = "STATE_1501"
)

// Network and manifest error constructors

func NewNetworkError(url string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeNetworkError, "Network request failed").
		WithUserMessage("Could not reach the remote server").
		WithContext("url", url).
		WithSeverity("error").
		AsRetryable()
}

func NewManifestParseError(url string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestParse, "Manifest parse error").
		WithUserMessage("The repository listing could not be parsed").
		WithContext("repository_url", url).
		WithSeverity("error")
}

func NewManifestInvalidError(url string, reason string) *errors.Error {
	return errors.New(ErrCodeManifestInvalid, "Invalid manifest: "+reason).
		WithUserMessage("The repository listing is invalid").
		WithContext("repository_url", url).
		WithSeverity("error")
}

func NewDownloadFailedError(extensionID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDownloadFailed, "Package download failed").
		WithUserMessage("The extension package could not be downloaded").
		WithContext("extension_id", extensionID).
		WithSeverity("error").
		AsRetryable()
}

func NewInvalidRepositoryError(url string) *errors.Error {
	return errors.New(ErrCodeInvalidRepository, "Invalid repository URL").
		WithUserMessage("The repository URL is malformed").
		WithContext("url", url).
		WithSeverity("error")
}

func NewDuplicateRepositoryError(url string) *errors.Error {
	return errors.New(ErrCodeDuplicateRepo, "Repository already added").
		WithUserMessage("This repository is already configured").
		WithContext("url", url).
		WithSeverity("warning")
}

func NewRepositoryNotFoundError(url string) *errors.Error {
	return errors.New(ErrCodeRepositoryNotFound, "Repository not found").
		WithUserMessage("The repository is not configured").
		WithContext("url", url).
		WithSeverity("warning")
}

// Installation error constructors

func NewInstallTimeoutError(extensionID string, attempts int) *errors.Error {
	return errors.New(ErrCodeInstallTimeout, "Installation confirmation timeout").
		WithUserMessage("Installation could not be confirmed, retry without re-downloading").
		WithContext("extension_id", extensionID).
		WithContext("attempts", attempts).
		WithSeverity("warning").
		AsRetryable()
}

func NewInvalidTransitionError(extensionID string, from InstallationStatus, action string) *errors.Error {
	return errors.New(ErrCodeInvalidTransition, "Invalid installation state transition").
		WithUserMessage("The requested action is not valid in the current state").
		WithContext("extension_id", extensionID).
		WithContext("current_status", from.String()).
		WithContext("action", action).
		WithSeverity("warning")
}

func NewPackageNotReadyError(extensionID string) *errors.Error {
	return errors.New(ErrCodePackageNotReady, "Package not downloaded").
		WithUserMessage("The extension package must be downloaded before installation").
		WithContext("extension_id", extensionID).
		WithSeverity("warning")
}

func NewHostTriggerError(extensionID string, action string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHostTrigger, "Host installer trigger failed").
		WithUserMessage("The system installer could not be started").
		WithContext("extension_id", extensionID).
		WithContext("action", action).
		WithSeverity("error")
}

// Loading error constructors

func NewClassNotFoundError(extensionID string, candidatesTried int) *errors.Error {
	return errors.New(ErrCodeClassNotFound, "No extension entry point discovered").
		WithUserMessage("The installed extension does not expose a recognizable entry point").
		WithContext("extension_id", extensionID).
		WithContext("candidates_tried", candidatesTried).
		WithSeverity("error")
}

func NewModuleOpenError(extensionID string, codePath string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeModuleOpenFailed, "Module loading failed").
		WithUserMessage("The extension code could not be loaded").
		WithContext("extension_id", extensionID).
		WithContext("code_path", codePath).
		WithSeverity("error")
}

func NewPackageMetadataError(extensionID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePackageMetadata, "Host package metadata unavailable").
		WithUserMessage("Installed package information could not be read").
		WithContext("extension_id", extensionID).
		WithSeverity("error")
}

// Adapter error constructors

func NewAdapterInvocationError(operation string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeAdapterInvocation, "Adapter invocation failed").
		WithUserMessage("The extension call failed").
		WithContext("operation", operation).
		WithSeverity("error")
}

func NewAdapterNoMethodError(operation string, tried []string) *errors.Error {
	return errors.New(ErrCodeAdapterNoMethod, "No matching method on extension instance").
		WithUserMessage("The extension does not support this operation").
		WithContext("operation", operation).
		WithContext("names_tried", tried).
		WithSeverity("warning")
}

func NewExtensionFailureError(operation string, message string) *errors.Error {
	return errors.New(ErrCodeExtensionFailure, "Extension reported failure: "+message).
		WithUserMessage("The extension reported an error").
		WithContext("operation", operation).
		WithSeverity("warning")
}

// Registry error constructors

func NewExtensionNotFoundError(extensionID string) *errors.Error {
	return errors.New(ErrCodeExtensionNotFound, "Extension not found").
		WithUserMessage("The requested extension is not installed").
		WithContext("extension_id", extensionID).
		WithSeverity("warning")
}

func NewRegistryClosedError() *errors.Error {
	return errors.New(ErrCodeRegistryClosed, "Registry closed").
		WithUserMessage("The extension registry has been shut down").
		WithSeverity("error")
}

// Persistence error constructors

func NewStateStoreError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStateStore, "State store error: "+message).
		WithUserMessage("Persisted runtime state could not be accessed").
		WithSeverity("error")
}
