package models

import (
	"context"

	"github.com/fintechpatents/patentcls/inference"
)

// ArtifactExt is the file extension of packed artifacts.
const ArtifactExt = ".gob"

// artifactPacker is the default Packer. It loads a pretrained model directory
// with the inference package and writes the tokenizer and model states to a
// single artifact.
type artifactPacker struct{}

var _ Packer = artifactPacker{}

// Pack implements Packer.
func (artifactPacker) Pack(ctx context.Context, modelDir, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	artifact, err := inference.LoadPretrained(modelDir)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return inference.WriteArtifact(artifactPath, artifact)
}
