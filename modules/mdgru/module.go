// Package mdgru implements the file conventions of the MD-GRU segmentation
// engine: the input keeps its own name inside the case directory, and the
// engine writes a discrete label map plus a 4D per-class probability volume
// under fixed names.
package mdgru

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/brainseg/internal/engine"
	"github.com/vk/brainseg/internal/fsutil"
)

const (
	labelMapName = "mdgru-labels.nii.gz"
	probMapName  = "mdgru-probdist.nii.gz"
)

// Module implements the engine.Module interface for this package.
type Module struct{}

// Register registers the mdgru handler with the registry.
func (Module) Register(r *engine.Registry) {
	r.RegisterHandler("mdgru", &engine.Handler{
		Prepare: prepare,
		Collect: collect,
	})
}

func prepare(caseDir, inputPath string) (string, error) {
	staged := filepath.Base(inputPath)
	if err := fsutil.CopyFile(inputPath, filepath.Join(caseDir, staged)); err != nil {
		return "", fmt.Errorf("failed to stage input for mdgru: %w", err)
	}
	return staged, nil
}

func collect(caseDir, _ string) (engine.Outputs, error) {
	labelMap := filepath.Join(caseDir, labelMapName)
	if _, err := os.Stat(labelMap); err != nil {
		return engine.Outputs{}, fmt.Errorf("mdgru did not produce %s: %w", labelMapName, err)
	}

	outputs := engine.Outputs{LabelMap: labelMap}
	probMap := filepath.Join(caseDir, probMapName)
	if _, err := os.Stat(probMap); err == nil {
		outputs.ProbMap = probMap
	}
	return outputs, nil
}
