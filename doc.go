// Package models prepares pretrained patent classifiers for serving.
//
// A model registry is an INI file with one section per model. Each section
// carries a download link and display text. The package serves two use cases:
//
//  1. Programmatic API via the Manager interface - NewManager opens the
//     registry and exposes the fetch and pack operations.
//
//  2. Embeddable CLI via NewCommand - parent CLI tools can attach a "models"
//     subcommand tree (fetch, pack, prepare, list) to their Cobra root command.
//
// # Preparation
//
// Fetching downloads each model's zip archive, extracts it under the models
// directory, and records the extracted root folder as model_path. Packing
// loads the extracted tokenizer and model, writes them as one artifact blob,
// removes the extracted directory, and records model_tokenizer_pickle_path.
// Every mutation is persisted to the registry file immediately.
//
// Batch operations are partial-failure tolerant: a model that fails to
// download or pack is logged and skipped, and the remaining models
// are still processed.
//
// # Registry writes
//
// The registry file has a single owner per process. Writes are serialized
// in-process by a mutex and across processes by an advisory file lock, and
// are applied atomically with write-then-rename.
package models
