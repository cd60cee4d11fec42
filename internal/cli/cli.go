package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/brainseg/internal/app"
	"github.com/vk/brainseg/internal/device"
	"github.com/vk/brainseg/internal/fsutil"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("brainseg", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
brainseg - Brainstem segmentation on T1-weighted MR volumes.

Usage:
  brainseg [options] INPUT

Arguments:
  INPUT
    Path to a .nii or .nii.gz volume, or a directory of volumes.
    The .nii.gz extension may be omitted when the file exists.

Options:
`)
		flagSet.PrintDefaults()
	}

	outputFlag := flagSet.String("o", "", "Explicit output file path (must end in .nii.gz).")
	outDirFlag := flagSet.String("d", "", "Directory to place output label maps in.")
	suffixFlag := flagSet.String("s", "_brainstem", "Suffix appended to the input stem to name the output.")
	overwriteFlag := flagSet.Bool("x", false, "Overwrite the output file if it already exists.")
	quietFlag := flagSet.Bool("q", false, "Only log errors.")
	engineFlag := flagSet.String("engine", "", "Name of the inference engine to use. Defaults to the sole installed engine.")
	enginesPathFlag := flagSet.String("engines-path", "engines", "Path to the directory containing engine manifests.")
	deviceFlag := flagSet.String("device", "auto", "Compute device. Options: 'auto', 'cpu', or 'cuda'.")
	workersFlag := flagSet.Int("workers", 1, "Number of volumes to segment concurrently in directory mode.")
	watchFlag := flagSet.Bool("watch", false, "Watch the input directory and segment volumes as they appear.")
	settleFlag := flagSet.Duration("settle", 0, "How long a watched file must stay unchanged before it is processed.")
	keepTempFlag := flagSet.Bool("keep-temp", false, "Keep the per-case temp directory for debugging.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: "missing INPUT argument"}
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected a single INPUT argument, got %d", flagSet.NArg())}
	}
	input := flagSet.Arg(0)

	if *outputFlag != "" && fsutil.VolumeExt(*outputFlag) != ".nii.gz" {
		return nil, false, &ExitError{Code: 2, Message: "invalid -o: output path must end in .nii.gz"}
	}

	suffix, err := normalizeSuffix(*suffixFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	kind, err := device.ParseKind(*deviceFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *workersFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "invalid -workers: must be at least 1"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		InputPath:   input,
		OutputPath:  *outputFlag,
		OutputDir:   *outDirFlag,
		Suffix:      suffix,
		Overwrite:   *overwriteFlag,
		Engine:      *engineFlag,
		EnginesPath: *enginesPathFlag,
		Device:      kind,
		Workers:     *workersFlag,
		Watch:       *watchFlag,
		Settle:      *settleFlag,
		KeepTemp:    *keepTempFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		Quiet:       *quietFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}

// normalizeSuffix strips a volume extension the user may have typed into the
// suffix and rejects an empty result, which would make the output overwrite
// the input.
func normalizeSuffix(s string) (string, error) {
	s = fsutil.TrimVolumeExt(s)
	if s == "" {
		return "", fmt.Errorf("invalid -s: suffix must not be empty")
	}
	return s, nil
}
