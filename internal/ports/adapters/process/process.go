package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/logging"
	"github.com/forPelevin/text2splat/internal/types"
)

// Runner launches child programs with the parent's stdio attached.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Log    *zerolog.Logger
}

func New(log *zerolog.Logger) *Runner {
	return &Runner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
		Log:    logging.OrNop(log),
	}
}

func (r *Runner) Run(ctx context.Context, c types.Command) error {
	if c.Name == "" {
		return &failures.SubprocessError{Name: "(empty)", ExitCode: -1, Err: errors.New("no program given")}
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Stdin = r.Stdin

	logging.OrNop(r.Log).Debug().Str("program", c.Name).Strs("args", c.Args).Str("dir", c.Dir).Msg("launching")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", c.Name, ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return &failures.SubprocessError{Name: c.Name, ExitCode: ee.ExitCode(), Err: err}
		}
		return &failures.SubprocessError{Name: c.Name, ExitCode: -1, Err: err}
	}
	return nil
}

// Ensure makes sure bin exists, running build once when it does not.
// It reports whether a build happened.
func (r *Runner) Ensure(ctx context.Context, bin string, build types.Command) (bool, error) {
	if fileExists(bin) {
		return false, nil
	}
	logging.OrNop(r.Log).Info().Str("bin", bin).Str("dir", build.Dir).Msg("viewer binary missing, building")
	if err := r.Run(ctx, build); err != nil {
		return true, fmt.Errorf("build %s: %w", bin, err)
	}
	if !fileExists(bin) {
		return true, fmt.Errorf("build finished without producing binary: %w", &fs.PathError{Op: "stat", Path: bin, Err: fs.ErrNotExist})
	}
	return true, nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
