// Package fsutil provides file system utility functions for working with
// NIfTI volume files.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// volumeExts are the recognized NIfTI file extensions, longest first so that
// TrimVolumeExt strips ".nii.gz" before ".nii".
var volumeExts = []string{".nii.gz", ".nii"}

// HasVolumeExt reports whether the given path carries a recognized NIfTI
// extension.
func HasVolumeExt(path string) bool {
	return VolumeExt(path) != ""
}

// VolumeExt returns the NIfTI extension of the given path, or an empty
// string if it has none.
func VolumeExt(path string) string {
	for _, ext := range volumeExts {
		if strings.HasSuffix(path, ext) {
			return ext
		}
	}
	return ""
}

// TrimVolumeExt strips a trailing NIfTI extension from the given path, if
// present.
func TrimVolumeExt(path string) string {
	return strings.TrimSuffix(path, VolumeExt(path))
}

// FindVolumes returns the volume files directly inside the given directory,
// sorted by name. It does not recurse; batch runs operate on a flat case
// directory.
func FindVolumes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %q: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if HasVolumeExt(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		return nil, fmt.Errorf("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// CopyFile copies src to dst, truncating dst if it exists. Permissions are
// carried over from the source file.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}
