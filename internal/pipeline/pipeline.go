// Package pipeline implements one segmentation run end to end: input
// validation, staging, orientation and spacing normalization, engine
// invocation, postprocessing back onto the input grid, and the atomic
// output write. It is deliberately single-shot and linear; fan-out over
// many cases is the caller's concern.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/brainseg/internal/ctxlog"
	"github.com/vk/brainseg/internal/device"
	"github.com/vk/brainseg/internal/engine"
	"github.com/vk/brainseg/internal/fsutil"
	"github.com/vk/brainseg/internal/nifti"
	"github.com/vk/brainseg/internal/resample"
)

// DefaultSuffix is appended to the input stem to derive the output name.
const DefaultSuffix = "_brainstem"

// probabilityThreshold turns a resampled class probability into a label.
const probabilityThreshold = 0.5

// Request describes one segmentation run.
type Request struct {
	InputPath  string
	OutputPath string // explicit output file; overrides Suffix
	OutputDir  string // relocates the output basename when set
	Suffix     string // defaults to DefaultSuffix
	Overwrite  bool
	KeepTemp   bool
	Device     device.Kind
}

// Result reports what a run did.
type Result struct {
	OutputPath string
	Device     device.Kind
	Reoriented bool
	Resliced   bool
	Elapsed    time.Duration
}

// ExecFunc invokes the engine subprocess for a staged case. Tests substitute
// it to run the pipeline against a fake engine.
type ExecFunc func(ctx context.Context, eng *engine.Engine, vars engine.CaseVars, extraEnv []string) error

// Runner executes segmentation requests against one engine.
type Runner struct {
	Engine *engine.Engine
	// Exec defaults to Engine.Run when nil.
	Exec ExecFunc
}

// Run performs one segmentation. On any failure no output file is left
// behind, half-written or otherwise.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	inputPath, err := ResolveInput(req.InputPath)
	if err != nil {
		return nil, err
	}

	suffix := req.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	outPath, err := DeriveOutputPath(inputPath, req.OutputPath, req.OutputDir, suffix)
	if err != nil {
		return nil, err
	}

	if statIsFile(outPath) {
		if !req.Overwrite {
			return nil, fmt.Errorf("%w: %s (pass -x to allow overwriting)", ErrOutputExists, outPath)
		}
		logger.Info("Output label map exists already and will be overwritten.", "path", outPath)
	}

	resolved, err := device.Resolve(req.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	logger.Info("Segmenting brainstem.",
		"engine", r.Engine.Manifest.Name, "input", inputPath, "output", outPath, "device", string(resolved))

	caseDir := fsutil.TrimVolumeExt(outPath) + "_temp-" + shortID()
	if _, err := os.Stat(caseDir); err == nil {
		logger.Warn("Stale case directory exists already and will be removed.", "dir", caseDir)
		os.RemoveAll(caseDir)
	}
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create case directory: %w", err)
	}
	defer func() {
		if req.KeepTemp {
			logger.Info("Keeping case directory.", "dir", caseDir)
			return
		}
		os.RemoveAll(caseDir)
	}()

	staged, err := r.Engine.Handler.Prepare(caseDir, inputPath)
	if err != nil {
		return nil, err
	}
	stagedPath := filepath.Join(caseDir, staged)

	img, err := nifti.Load(stagedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if img.Nt > 1 {
		return nil, fmt.Errorf("%w: expected a single-channel volume, got %d channels", ErrUnsupportedFormat, img.Nt)
	}
	img.Nt = 1

	// The original grid every result is mapped back onto.
	ref := &nifti.Image{Nx: img.Nx, Ny: img.Ny, Nz: img.Nz, Nt: 1, Affine: img.Affine}

	img, reoriented, err := r.normalizeOrientation(ctx, img)
	if err != nil {
		return nil, err
	}
	img, resliced, err := r.normalizeSpacing(ctx, img)
	if err != nil {
		return nil, err
	}
	if reoriented || resliced {
		if err := img.Save(stagedPath); err != nil {
			return nil, fmt.Errorf("failed to write normalized input: %w", err)
		}
	}

	vars := engine.CaseVars{
		Dir:       caseDir,
		InputFile: staged,
		InputPath: stagedPath,
		Device:    string(resolved),
	}
	execFn := r.Exec
	if execFn == nil {
		execFn = func(ctx context.Context, eng *engine.Engine, vars engine.CaseVars, extraEnv []string) error {
			return eng.Run(ctx, vars, extraEnv)
		}
	}
	if err := execFn(ctx, r.Engine, vars, device.Env(resolved)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}

	outputs, err := r.Engine.Handler.Collect(caseDir, staged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}

	seg, err := r.postprocess(ctx, outputs, ref, reoriented, resliced)
	if err != nil {
		return nil, err
	}
	if err := r.validateLabels(seg); err != nil {
		return nil, err
	}

	if err := writeAtomic(seg, outPath); err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	logger.Info("Wrote brainstem label map.", "path", outPath, "elapsed", elapsed)
	return &Result{
		OutputPath: outPath,
		Device:     resolved,
		Reoriented: reoriented,
		Resliced:   resliced,
		Elapsed:    elapsed,
	}, nil
}

// normalizeOrientation reorients anything that is not RAS+ or LAS+ to the
// closest canonical RAS+ grid. Both accepted orientations share axis order
// and only differ in the left-right flip, which the models tolerate.
func (r *Runner) normalizeOrientation(ctx context.Context, img *nifti.Image) (*nifti.Image, bool, error) {
	logger := ctxlog.FromContext(ctx)
	codes := nifti.AxCodes(img.Affine)
	logger.Info("Checked input orientation.", "orientation", codes+"+")
	if codes == "RAS" || codes == "LAS" {
		return img, false, nil
	}
	logger.Info("Reorienting input to RAS+.")
	out, changed := img.ToCanonical()
	return out, changed, nil
}

// normalizeSpacing applies the engine's spacing policy: spacing within the
// accepted range passes through, anything else is resliced to the isotropic
// target. Engines without a policy only get their spacing reported.
func (r *Runner) normalizeSpacing(ctx context.Context, img *nifti.Image) (*nifti.Image, bool, error) {
	logger := ctxlog.FromContext(ctx)
	spacing := img.Affine.Spacing()
	logger.Info("Checked input resolution.", "spacing_mm", fmt.Sprintf("[%.3f %.3f %.3f]", spacing[0], spacing[1], spacing[2]))

	policy := r.Engine.Manifest.Spacing
	if policy == nil {
		return img, false, nil
	}
	within := true
	for _, s := range spacing {
		if s < policy.Min || s > policy.Max {
			within = false
		}
	}
	if within {
		return img, false, nil
	}

	logger.Info("Resolution is outside the accepted range; reslicing.",
		"min_mm", policy.Min, "max_mm", policy.Max, "target_mm", policy.Isotropic)
	out, err := resample.ToSpacing(img, policy.Isotropic, resample.Trilinear, true)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reslice input: %w", err)
	}
	return out, true, nil
}

// postprocess maps the engine's result back onto the original input grid.
//
// After a reslice the discrete label map lives on the wrong grid, and
// nearest-neighbour resampling of labels across a resolution change is
// lossy; instead each class probability channel is resampled onto the
// original grid and thresholded, later classes overwriting earlier ones.
// After a plain reorientation the label map is nearest-neighbour mapped
// back. Otherwise the engine output is already on the input grid and is
// passed through with the affine pinned to the input's.
func (r *Runner) postprocess(ctx context.Context, outputs engine.Outputs, ref *nifti.Image, reoriented, resliced bool) (*nifti.Image, error) {
	logger := ctxlog.FromContext(ctx)
	labels := r.Engine.Manifest.Labels

	if resliced {
		if outputs.ProbMap == "" {
			return nil, fmt.Errorf("%w: engine produced no probability map to undo the reslicing with", ErrInferenceFailed)
		}
		logger.Info("Reslicing probability maps onto the original voxel grid and thresholding.")

		prob, err := nifti.Load(outputs.ProbMap)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read probability map: %v", ErrInferenceFailed, err)
		}
		seg := nifti.NewImage(ref.Nx, ref.Ny, ref.Nz, ref.Affine)
		seg.Datatype = nifti.DTUint8
		for _, label := range labels.Values() {
			if label >= prob.Nt {
				return nil, fmt.Errorf("%w: probability map has %d channels, need channel %d", ErrInferenceFailed, prob.Nt, label)
			}
			ch, err := prob.Channel(label)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
			}
			res, err := resample.ToReference(ch, ref, resample.Trilinear)
			if err != nil {
				return nil, fmt.Errorf("failed to resample probability channel %d: %w", label, err)
			}
			for i, p := range res.Data {
				if p >= probabilityThreshold {
					seg.Data[i] = float64(label)
				}
			}
		}
		return seg, nil
	}

	labelMap, err := nifti.Load(outputs.LabelMap)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read engine label map: %v", ErrInferenceFailed, err)
	}

	if reoriented {
		logger.Info("Reorienting label map back onto the original axes.")
		seg, err := resample.ToReference(labelMap, ref, resample.Nearest)
		if err != nil {
			return nil, fmt.Errorf("failed to resample label map: %w", err)
		}
		seg.Datatype = nifti.DTUint8
		return seg, nil
	}

	if !labelMap.SameGrid(ref) {
		return nil, fmt.Errorf("%w: engine label map grid %dx%dx%d does not match the input %dx%dx%d",
			ErrInferenceFailed, labelMap.Nx, labelMap.Ny, labelMap.Nz, ref.Nx, ref.Ny, ref.Nz)
	}
	// The engines are known to drop or rewrite transform codes; the output
	// contract is that the affine matches the input exactly.
	labelMap.Affine = ref.Affine
	labelMap.Datatype = nifti.DTUint8
	return labelMap, nil
}

// validateLabels rejects engine output containing values outside the
// manifest's label set.
func (r *Runner) validateLabels(seg *nifti.Image) error {
	labels := r.Engine.Manifest.Labels
	for _, v := range seg.Data {
		if !labels.Contains(int(math.Round(v))) {
			return fmt.Errorf("%w: label map contains unexpected value %g", ErrInferenceFailed, v)
		}
	}
	return nil
}
