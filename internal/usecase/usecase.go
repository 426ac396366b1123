package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/logging"
	"github.com/forPelevin/text2splat/internal/ports"
	"github.com/forPelevin/text2splat/internal/types"
)

type Deps struct {
	Optimizer     ports.PromptOptimizer
	Generator     ports.VideoGenerator
	Downloader    ports.VideoDownloader
	Video         ports.VideoTool
	Reconstructor ports.Reconstructor
	Proc          ports.ProcessRunner
	Log           *zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

func (u Usecase) log() *zerolog.Logger { return logging.OrNop(u.d.Log) }

type ViewsInput struct {
	Prompt string
	// ScratchDir holds the downloaded video and is removed when the run ends.
	ScratchDir string
	ViewsDir   string
	// Timestamps defaults to frames.DefaultTimestamps.
	Timestamps []float64
}

// GenerateViews turns a prompt into still frames of a generated clip.
func (u Usecase) GenerateViews(ctx context.Context, in ViewsInput) (res types.ViewsResult, err error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return res, fmt.Errorf("%w: please provide a prompt", failures.ErrSetup)
	}
	res.Prompt = in.Prompt
	t := newTimer(&res.Stages)

	// Optimization failures are not fatal; the raw prompt is used as is.
	done := t.start("optimize")
	optimized, oerr := u.d.Optimizer.Optimize(ctx, in.Prompt)
	if oerr != nil {
		u.log().Warn().Err(oerr).Msg("prompt optimization failed, using original prompt")
		res.UsedPrompt = in.Prompt
		res.PromptFallback = true
		done("fallback to original prompt")
	} else {
		res.UsedPrompt = optimized
		done(fmt.Sprintf("%d chars", len(optimized)))
	}

	done = t.start("generate")
	uri, err := u.d.Generator.Generate(ctx, res.UsedPrompt)
	if err != nil {
		return res, fmt.Errorf("generate video: %w", err)
	}
	res.VideoURI = uri
	done("")

	if err := os.MkdirAll(in.ScratchDir, 0o755); err != nil {
		return res, err
	}
	defer func() {
		if rerr := os.RemoveAll(in.ScratchDir); rerr != nil {
			u.log().Warn().Err(rerr).Str("dir", in.ScratchDir).Msg("remove scratch dir")
		}
	}()

	done = t.start("download")
	videoPath, err := u.d.Downloader.Download(ctx, uri, in.ScratchDir)
	if err != nil {
		return res, fmt.Errorf("download video: %w", err)
	}
	done(filepath.Base(videoPath))

	done = t.start("extract")
	frames, err := u.extractFrames(ctx, videoPath, in.ViewsDir, in.Timestamps)
	if err != nil {
		return res, fmt.Errorf("extract frames: %w", err)
	}
	res.Frames = frames
	done(fmt.Sprintf("%d frames", len(frames)))

	return res, nil
}

type SplatInput struct {
	Prompt string
	// Views is the frame-generating tool; the prompt is appended after "--"
	// so a leading dash is not read as a flag.
	Views     types.Command
	ViewsDir  string
	AssetPath string
	ViewerBin string
	// ViewerBuild produces ViewerBin when it is missing.
	ViewerBuild types.Command
}

// BuildSplat runs the views tool, reconstructs a splat from its frames and
// opens the result in the viewer.
func (u Usecase) BuildSplat(ctx context.Context, in SplatInput) (res types.SplatResult, err error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return res, fmt.Errorf("%w: please provide a prompt", failures.ErrSetup)
	}
	t := newTimer(&res.Stages)

	done := t.start("views")
	u.log().Info().Str("program", in.Views.Name).Msg("generating views")
	if err := u.d.Proc.Run(ctx, in.Views.With("--", in.Prompt)); err != nil {
		return res, fmt.Errorf("generate views: %w", err)
	}
	n, err := countJPEGs(in.ViewsDir)
	if err != nil {
		return res, fmt.Errorf("check views: %w", err)
	}
	if n == 0 {
		return res, fmt.Errorf("%w: %s has no frames", failures.ErrNoInput, in.ViewsDir)
	}
	res.Views = n
	done(fmt.Sprintf("%d frames", n))

	done = t.start("reconstruct")
	asset, err := u.d.Reconstructor.Reconstruct(ctx, in.ViewsDir)
	if err != nil {
		return res, fmt.Errorf("reconstruct: %w", err)
	}
	if err := writeFile(in.AssetPath, asset); err != nil {
		return res, err
	}
	res.AssetPath = in.AssetPath
	res.AssetBytes = len(asset)
	u.log().Info().Str("path", in.AssetPath).Int("bytes", len(asset)).Msg("asset written")
	done(fmt.Sprintf("%d bytes", len(asset)))

	done = t.start("viewer")
	built, err := u.d.Proc.Ensure(ctx, in.ViewerBin, in.ViewerBuild)
	res.ViewerBuilt = built
	if err != nil {
		return res, fmt.Errorf("prepare viewer: %w", err)
	}
	viewer := types.Command{Name: in.ViewerBin, Args: []string{in.AssetPath, "--with-viewer"}}
	if err := u.d.Proc.Run(ctx, viewer); err != nil {
		return res, fmt.Errorf("run viewer: %w", err)
	}
	if built {
		done("built and launched")
	} else {
		done("launched")
	}

	return res, nil
}

type timer struct{ stages *[]types.StageTiming }

func newTimer(stages *[]types.StageTiming) timer { return timer{stages: stages} }

func (t timer) start(stage string) func(detail string) {
	began := time.Now()
	return func(detail string) {
		*t.stages = append(*t.stages, types.StageTiming{Stage: stage, Duration: time.Since(began), Detail: detail})
	}
}

func countJPEGs(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

func writeFile(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
