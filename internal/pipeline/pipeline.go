package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/forPelevin/text2splat/internal/config"
	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/logging"
	"github.com/forPelevin/text2splat/internal/poll"
	"github.com/forPelevin/text2splat/internal/ports"
	"github.com/forPelevin/text2splat/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/text2splat/internal/ports/adapters/gemini"
	"github.com/forPelevin/text2splat/internal/ports/adapters/process"
	"github.com/forPelevin/text2splat/internal/ports/adapters/reconstruct"
	"github.com/forPelevin/text2splat/internal/types"
	"github.com/forPelevin/text2splat/internal/usecase"
)

const (
	ViewsDirName  = "views"
	AssetFileName = "output.ply"

	maxSlugLen = 40
)

type Config struct {
	Prompt string

	// WorkDir holds views/, output.ply and the .cache scratch area.
	// If empty, defaults to ".".
	WorkDir string

	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiAllowedHosts []string
	PromptModel        string
	VideoModel         string
	PollInterval       time.Duration
	PollMaxAttempts    int

	FFmpegPath  string
	FFprobePath string

	ReconstructURL string

	ViewsCommand       []string
	ViewerBin          string
	ViewerBuildDir     string
	ViewerBuildCommand []string

	// HTTPClient is shared by the remote adapters. Nil means their defaults.
	HTTPClient *http.Client

	Log *zerolog.Logger
	// Summary receives the stage table. Nil disables it.
	Summary io.Writer
}

// FromSettings copies loaded settings into a run config for prompt.
func FromSettings(s config.Settings, prompt string) Config {
	cfg := Config{
		Prompt:             prompt,
		WorkDir:            s.WorkDir,
		GeminiAPIKey:       s.GeminiAPIKey,
		GeminiBaseURL:      s.GeminiBaseURL,
		GeminiAllowedHosts: s.GeminiAllowedHosts,
		PromptModel:        s.PromptModel,
		VideoModel:         s.VideoModel,
		PollInterval:       s.PollInterval,
		PollMaxAttempts:    s.PollMaxAttempts,
		ReconstructURL:     s.ReconstructURL,
		ViewsCommand:       s.ViewsCommand,
		ViewerBin:          s.ViewerBin,
		ViewerBuildDir:     s.ViewerBuildDir,
		ViewerBuildCommand: s.ViewerBuildCommand,
	}
	cfg.WorkDir = cfg.workDir()
	return cfg
}

func (c Config) validatePrompt() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return fmt.Errorf("%w: please provide a prompt", failures.ErrSetup)
	}
	return nil
}

func (c Config) ValidateViews() error {
	if err := c.validatePrompt(); err != nil {
		return err
	}
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", failures.ErrSetup)
	}
	if c.PollMaxAttempts < 0 {
		return fmt.Errorf("%w: poll max attempts must be >= 0", failures.ErrSetup)
	}
	if err := gemini.ValidateBaseURL(c.GeminiBaseURL, c.GeminiAllowedHosts); err != nil {
		return fmt.Errorf("%w: %v", failures.ErrSetup, err)
	}
	return nil
}

func (c Config) ValidateSplat() error {
	if err := c.validatePrompt(); err != nil {
		return err
	}
	if len(c.ViewsCommand) == 0 {
		return fmt.Errorf("%w: views command is empty", failures.ErrSetup)
	}
	if strings.TrimSpace(c.ViewerBin) == "" {
		return fmt.Errorf("%w: viewer binary path is empty", failures.ErrSetup)
	}
	if len(c.ViewerBuildCommand) == 0 {
		return fmt.Errorf("%w: viewer build command is empty", failures.ErrSetup)
	}
	return nil
}

// workDir is absolute so child processes agree on it whatever their cwd.
func (c Config) workDir() string {
	wd := c.WorkDir
	if wd == "" {
		wd = "."
	}
	if abs, err := filepath.Abs(wd); err == nil {
		return abs
	}
	return wd
}

// inWorkDir resolves relative paths against the work dir.
func (c Config) inWorkDir(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.workDir(), p)
}

// RunViews generates the views/ frames for cfg.Prompt.
func RunViews(ctx context.Context, cfg Config) (types.ViewsResult, error) {
	if err := cfg.ValidateViews(); err != nil {
		return types.ViewsResult{}, err
	}
	log := logging.OrNop(cfg.Log)

	g := gemini.New(gemini.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		PromptModel: cfg.PromptModel,
		VideoModel:  cfg.VideoModel,
		Poll: poll.Config{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     log,
	})
	uc := usecase.New(usecase.Deps{
		Optimizer:  g,
		Generator:  g,
		Downloader: g,
		Video:      ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		Log:        log,
	})

	runDir := buildRunDir(filepath.Join(cfg.workDir(), ".cache", "runs"), cfg.Prompt, time.Now().UTC(), uuid.NewString())
	viewsDir := filepath.Join(cfg.workDir(), ViewsDirName)
	log.Info().Str("scratch", runDir).Str("views", viewsDir).Msg("preparing workspace")

	res, err := uc.GenerateViews(ctx, usecase.ViewsInput{
		Prompt:     cfg.Prompt,
		ScratchDir: runDir,
		ViewsDir:   viewsDir,
	})
	if err != nil {
		return res, err
	}
	log.Info().Int("frames", len(res.Frames)).Str("dir", viewsDir).Msg("views written")
	renderSummary(cfg.Summary, res.Stages)
	return res, nil
}

// RunSplat drives the full prompt to splat pipeline and opens the viewer.
func RunSplat(ctx context.Context, cfg Config) (types.SplatResult, error) {
	if err := cfg.ValidateSplat(); err != nil {
		return types.SplatResult{}, err
	}
	log := logging.OrNop(cfg.Log)

	uc := usecase.New(usecase.Deps{
		Reconstructor: reconstruct.New(reconstruct.Options{URL: cfg.ReconstructURL, HTTPClient: cfg.HTTPClient, Logger: log}),
		Proc:          process.New(log),
		Log:           log,
	})

	res, err := uc.BuildSplat(ctx, usecase.SplatInput{
		Prompt: cfg.Prompt,
		// The views tool runs from our cwd (so "go run ./cmd/..." resolves)
		// and gets the work dir through its environment.
		Views: types.Command{
			Name: cfg.ViewsCommand[0],
			Args: cfg.ViewsCommand[1:],
			Env:  []string{config.WorkDirEnv + "=" + cfg.workDir()},
		},
		ViewsDir:  filepath.Join(cfg.workDir(), ViewsDirName),
		AssetPath: filepath.Join(cfg.workDir(), AssetFileName),
		ViewerBin: cfg.inWorkDir(cfg.ViewerBin),
		ViewerBuild: types.Command{
			Name: cfg.ViewerBuildCommand[0],
			Args: cfg.ViewerBuildCommand[1:],
			Dir:  cfg.inWorkDir(cfg.ViewerBuildDir),
		},
	})
	if err != nil {
		return res, err
	}
	renderSummary(cfg.Summary, res.Stages)
	return res, nil
}

// DefaultViewsCommand prefers a text-to-view binary installed next to the
// running executable and falls back to compiling it from source.
func DefaultViewsCommand() []string {
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "text-to-view")
		if st, err := os.Stat(sibling); err == nil && !st.IsDir() {
			return []string{sibling}
		}
	}
	return []string{"go", "run", "./cmd/text-to-view"}
}

func renderSummary(w io.Writer, stages []types.StageTiming) {
	if w == nil || len(stages) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Stage", "Duration", "Detail")
	for _, s := range stages {
		table.Append(s.Stage, s.Duration.Round(time.Millisecond).String(), s.Detail)
	}
	table.Render()
}

func buildRunDir(root, prompt string, now time.Time, runID string) string {
	name := normalizePathSegment(prompt)
	if len(name) > maxSlugLen {
		name = strings.TrimRight(name[:maxSlugLen], "-")
	}
	if name == "" {
		name = "prompt"
	}
	ts := now.UTC().Format("20060102-150405Z")
	suffix := strings.ReplaceAll(runID, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return filepath.Join(root, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ensure adapters implement ports
var (
	_ ports.PromptOptimizer = (*gemini.Client)(nil)
	_ ports.VideoGenerator  = (*gemini.Client)(nil)
	_ ports.VideoDownloader = (*gemini.Client)(nil)
	_ ports.VideoTool       = (*ffmpeg.Adapter)(nil)
	_ ports.Reconstructor   = (*reconstruct.Client)(nil)
	_ ports.ProcessRunner   = (*process.Runner)(nil)
)
