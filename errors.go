package models

import "errors"

// Sentinel errors for model preparation.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrModelNotFound indicates the model identifier has no registry section.
	ErrModelNotFound = errors.New("models: model not found in registry")

	// ErrDownload indicates the archive fetch failed or the link is invalid.
	ErrDownload = errors.New("models: download failed")

	// ErrArchiveFormat indicates the archive has no identifiable root folder.
	ErrArchiveFormat = errors.New("models: archive has no root folder")

	// ErrHashMismatch indicates a downloaded archive failed hash verification.
	ErrHashMismatch = errors.New("models: hash verification failed")

	// ErrConfigWrite indicates the registry file could not be persisted.
	ErrConfigWrite = errors.New("models: config write failed")

	// ErrInvalidConfig indicates the registry file could not be read or parsed.
	ErrInvalidConfig = errors.New("models: invalid config file")

	// ErrNotExtracted indicates the model has no extracted directory to pack.
	ErrNotExtracted = errors.New("models: model not extracted")

	// ErrPack indicates the tokenizer and model could not be packed.
	ErrPack = errors.New("models: packing failed")
)
