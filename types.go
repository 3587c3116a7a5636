package models

import "strings"

// Default locations used when Config fields are empty.
const (
	// DefaultConfigFile is the registry file read and updated in place.
	DefaultConfigFile = "models_config.ini"

	// DefaultModelsDir is where archives are downloaded and extracted.
	DefaultModelsDir = "pretrained_models"

	// DefaultArtifactsDir is where packed tokenizer+model artifacts are written.
	DefaultArtifactsDir = "pickled_models"
)

// Registry keys recognized in each model section.
const (
	KeyDownloadURL   = "google_drive_zip_link"
	KeyModelPath     = "model_path"
	KeyDisplayName   = "display_name"
	KeyDescription   = "description"
	KeyArtifactPath  = "model_tokenizer_pickle_path"
	KeyArchiveSHA256 = "archive_sha256"
)

// Config configures the models module.
type Config struct {
	// ConfigFile is the path of the INI registry.
	// Example: "models_config.ini"
	ConfigFile string

	// ModelsDir is the directory archives are downloaded to and extracted in.
	ModelsDir string

	// ArtifactsDir is the directory packed artifacts are written to.
	ArtifactsDir string
}

// withDefaults returns a copy of c with empty fields set to defaults.
func (c Config) withDefaults() Config {
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigFile
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = DefaultArtifactsDir
	}
	return c
}

// ModelEntry is one model's registry record.
type ModelEntry struct {
	// ID is the unique identifier, the INI section name.
	ID string `json:"id"`

	// DisplayName is shown in the model selection control.
	DisplayName string `json:"display_name"`

	// Description is shown under the selected model.
	Description string `json:"description"`

	// DownloadURL is the zip archive link.
	DownloadURL string `json:"download_url"`

	// ModelPath is the extracted model directory. Empty until fetched.
	ModelPath string `json:"model_path,omitempty"`

	// ArtifactPath is the packed tokenizer+model blob. Empty until packed.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// ArchiveSHA256 optionally pins the archive content.
	ArchiveSHA256 string `json:"archive_sha256,omitempty"`
}

// Name returns the display name, falling back to the identifier.
func (e ModelEntry) Name() string {
	if strings.TrimSpace(e.DisplayName) != "" {
		return e.DisplayName
	}
	return e.ID
}

// Packed reports whether the entry has a packed artifact recorded.
func (e ModelEntry) Packed() bool {
	return e.ArtifactPath != ""
}

// Progress phases reported through WithProgress.
const (
	PhaseDownload = "download"
	PhaseExtract  = "extract"
	PhasePack     = "pack"
	PhaseDone     = "done"
	PhaseSkipped  = "skipped"
)

// Progress reports preparation progress for one model.
type Progress struct {
	// ID is the model being processed.
	ID string

	// Phase is one of the Phase* constants.
	Phase string

	// BytesTotal is the archive size when known, otherwise 0.
	BytesTotal int64

	// BytesCompleted is the number of archive bytes downloaded so far.
	BytesCompleted int64

	// CurrentFile is the file being extracted during the extract phase.
	CurrentFile string

	// Message carries a human-readable detail, e.g. the extracted path.
	Message string
}
