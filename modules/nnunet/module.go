// Package nnunet implements the file conventions of the nnU-Net inference
// command: the input is staged with the `_0000` modality suffix nnU-Net
// expects for single-channel tasks, and the prediction appears under the
// input's stem with the suffix stripped.
package nnunet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/brainseg/internal/engine"
	"github.com/vk/brainseg/internal/fsutil"
)

const modalitySuffix = "_0000"

// Module implements the engine.Module interface for this package.
type Module struct{}

// Register registers the nnunet handler with the registry.
func (Module) Register(r *engine.Registry) {
	r.RegisterHandler("nnunet", &engine.Handler{
		Prepare: prepare,
		Collect: collect,
	})
}

func prepare(caseDir, inputPath string) (string, error) {
	base := filepath.Base(inputPath)
	ext := fsutil.VolumeExt(base)
	staged := fsutil.TrimVolumeExt(base) + modalitySuffix + ext
	if err := fsutil.CopyFile(inputPath, filepath.Join(caseDir, staged)); err != nil {
		return "", fmt.Errorf("failed to stage input for nnunet: %w", err)
	}
	return staged, nil
}

func collect(caseDir, stagedName string) (engine.Outputs, error) {
	stem := fsutil.TrimVolumeExt(stagedName)
	stem = stem[:len(stem)-len(modalitySuffix)]

	// nnU-Net always writes compressed output regardless of the input's
	// compression.
	labelMap := filepath.Join(caseDir, stem+".nii.gz")
	if _, err := os.Stat(labelMap); err != nil {
		return engine.Outputs{}, fmt.Errorf("nnunet did not produce %s: %w", filepath.Base(labelMap), err)
	}
	return engine.Outputs{LabelMap: labelMap}, nil
}
