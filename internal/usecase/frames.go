package usecase

import (
	"context"
	"os"
	"path/filepath"

	"github.com/forPelevin/text2splat/internal/domain/frames"
)

// extractFrames recreates viewsDir and fills it with one JPEG per timestamp,
// named by position.
func (u Usecase) extractFrames(ctx context.Context, videoPath, viewsDir string, timestamps []float64) ([]string, error) {
	if len(timestamps) == 0 {
		timestamps = frames.DefaultTimestamps
	}
	if err := os.RemoveAll(viewsDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(viewsDir, 0o755); err != nil {
		return nil, err
	}

	info, err := u.d.Video.ProbeVideo(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	targets, err := frames.Plan(timestamps, info.FPS, info.Frames)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(targets))
	for _, tg := range targets {
		p := filepath.Join(viewsDir, tg.File)
		if err := u.d.Video.ExtractFrame(ctx, videoPath, tg.Frame, p); err != nil {
			return nil, err
		}
		u.log().Debug().Int("position", tg.Position).Float64("ts", tg.Timestamp).Int("frame", tg.Frame).Msg("frame extracted")
		out = append(out, p)
	}
	return out, nil
}
