package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/vk/brainseg/internal/ctxlog"
)

// errorTailBytes bounds how much engine output is embedded in an error
// message; the full output always goes to the log.
const errorTailBytes = 600

// Run invokes the engine's command for the staged case. The subprocess is
// placed in its own process group so a context cancellation kills the whole
// tree (the Python wrappers these engines ship fork workers). Stdout and
// stderr are captured together, logged, and the tail is attached to the
// error on a non-zero exit.
func (e *Engine) Run(ctx context.Context, vars CaseVars, extraEnv []string) error {
	logger := ctxlog.FromContext(ctx).With("engine", e.Manifest.Name)

	argv, err := e.Manifest.BuildCommand(vars)
	if err != nil {
		return err
	}
	workdir, err := e.Manifest.Workdir(vars)
	if err != nil {
		return err
	}

	logger.Info("Invoking inference engine.", "command", strings.Join(argv, " "), "workdir", workdir)
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = os.Environ()
	for k, v := range e.Manifest.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, extraEnv...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// Own process group, so the kill below reaches the engine's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine %q: %w", e.Manifest.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return fmt.Errorf("engine %q cancelled: %w", e.Manifest.Name, ctx.Err())
	case err = <-done:
	}

	elapsed := time.Since(start)
	if err != nil {
		logger.Error("Engine command failed.", "error", err, "elapsed", elapsed, "output", output.String())
		return fmt.Errorf("engine %q exited with an error: %w (output tail: %s)",
			e.Manifest.Name, err, tail(output.String(), errorTailBytes))
	}

	logger.Info("Engine command finished.", "elapsed", elapsed)
	logger.Debug("Engine output.", "output", output.String())
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
