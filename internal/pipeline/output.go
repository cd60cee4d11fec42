package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/brainseg/internal/fsutil"
	"github.com/vk/brainseg/internal/nifti"
)

// outputExt is the only extension the pipeline writes.
const outputExt = ".nii.gz"

// ResolveInput checks that the input path names an existing volume file.
// Following the original wrapper's convenience, a path missing its
// extension resolves when `<path>.nii.gz` exists.
func ResolveInput(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if !fsutil.HasVolumeExt(path) {
				if alt := path + outputExt; statIsFile(alt) {
					return alt, nil
				}
			}
			return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}
	if !fsutil.HasVolumeExt(path) {
		return "", fmt.Errorf("%w: %s does not have a .nii or .nii.gz extension", ErrUnsupportedFormat, path)
	}
	return path, nil
}

func statIsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DeriveOutputPath builds the output label map path from the input path and
// the output options: an explicit path wins over the suffix rule, and an
// output directory relocates whichever basename results.
func DeriveOutputPath(inputPath, explicit, outDir, suffix string) (string, error) {
	out := explicit
	if out == "" {
		out = fsutil.TrimVolumeExt(inputPath) + suffix + outputExt
	} else if fsutil.VolumeExt(out) != outputExt {
		return "", fmt.Errorf("output path %q must end in %s", out, outputExt)
	}
	if outDir != "" {
		out = filepath.Join(outDir, filepath.Base(out))
	}
	return out, nil
}

// writeAtomic saves the image next to its destination and renames it into
// place, so a failure mid-write never leaves a half-written label map under
// the output name.
func writeAtomic(img *nifti.Image, path string) error {
	tmp := fsutil.TrimVolumeExt(path) + ".partial-" + shortID() + outputExt
	if err := img.Save(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write output volume: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move output volume into place: %w", err)
	}
	return nil
}

// shortID returns an 8-character random suffix for temp names.
func shortID() string {
	return uuid.NewString()[:8]
}
