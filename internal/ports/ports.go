package ports

import (
	"context"

	"github.com/forPelevin/text2splat/internal/types"
)

type PromptOptimizer interface {
	Optimize(ctx context.Context, prompt string) (string, error)
}

// VideoGenerator submits a generation job and waits for its video URI.
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type VideoDownloader interface {
	Download(ctx context.Context, uri, dir string) (string, error)
}

type VideoTool interface {
	ProbeVideo(ctx context.Context, inMP4 string) (types.VideoInfo, error)
	ExtractFrame(ctx context.Context, inMP4 string, frame int, outJPG string) error
}

type Reconstructor interface {
	Reconstruct(ctx context.Context, framesDir string) ([]byte, error)
}

type ProcessRunner interface {
	Run(ctx context.Context, cmd types.Command) error
	Ensure(ctx context.Context, bin string, build types.Command) (bool, error)
}
