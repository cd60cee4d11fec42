// Package device resolves the compute device for an inference run. The
// container either exposes an NVIDIA runtime or it does not; there is
// nothing to configure beyond cpu, cuda, or picking automatically.
package device

import (
	"fmt"
	"os"
	"os/exec"
)

// Kind is a requested or resolved compute device.
type Kind string

const (
	Auto Kind = "auto"
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// ParseKind validates a device flag value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Auto, CPU, CUDA:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid device %q: must be 'auto', 'cpu', or 'cuda'", s)
	}
}

// probe reports whether an NVIDIA runtime is visible to this process.
// Swappable for tests.
var probe = func() bool {
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidiactl"); err == nil {
		return true
	}
	return false
}

// Available reports whether a CUDA device can be used.
func Available() bool {
	return probe()
}

// Resolve turns a requested kind into a concrete one. Requesting cuda on a
// host without an NVIDIA runtime is an error; auto degrades to cpu.
func Resolve(requested Kind) (Kind, error) {
	switch requested {
	case CPU:
		return CPU, nil
	case CUDA:
		if !Available() {
			return "", fmt.Errorf("cuda requested but no NVIDIA runtime detected")
		}
		return CUDA, nil
	case Auto, "":
		if Available() {
			return CUDA, nil
		}
		return CPU, nil
	default:
		return "", fmt.Errorf("invalid device %q", requested)
	}
}

// Env returns the environment entries the resolved device implies for the
// engine subprocess. Forcing cpu hides every CUDA device from it.
func Env(resolved Kind) []string {
	if resolved == CPU {
		return []string{"CUDA_VISIBLE_DEVICES="}
	}
	return nil
}
