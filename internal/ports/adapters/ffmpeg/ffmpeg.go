package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbReadFrames string `json:"nb_read_frames"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// ProbeVideo decodes the first video stream once to learn its frame rate and
// exact frame count.
func (a *Adapter) ProbeVideo(ctx context.Context, inMP4 string) (types.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate,nb_read_frames,nb_frames",
		"-of", "json",
		inMP4,
	)
	b, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: ffprobe: %v%s", failures.ErrDecode, err, stderrOf(err))
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: parse ffprobe output: %v", failures.ErrDecode, err)
	}
	if len(out.Streams) == 0 {
		return types.VideoInfo{}, fmt.Errorf("%w: no video stream", failures.ErrDecode)
	}
	s := out.Streams[0]

	fps, err := parseRate(s.RFrameRate)
	if err != nil || fps <= 0 {
		fps, err = parseRate(s.AvgFrameRate)
	}
	if err != nil || fps <= 0 {
		return types.VideoInfo{}, fmt.Errorf("%w: unknown frame rate (r=%q avg=%q)", failures.ErrDecode, s.RFrameRate, s.AvgFrameRate)
	}

	frames := -1
	for _, v := range []string{s.NbReadFrames, s.NbFrames} {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			frames = n
			break
		}
	}
	return types.VideoInfo{FPS: fps, Frames: frames}, nil
}

// parseRate reads ffprobe rationals such as "24/1" or "30000/1001".
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return strconv.ParseFloat(s, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parse rate %q: zero denominator", s)
	}
	return n / d, nil
}

// ExtractFrame decodes inMP4 from the start and writes frame number frame as
// a JPEG. Each call opens its own decoder.
func (a *Adapter) ExtractFrame(ctx context.Context, inMP4 string, frame int, outJPG string) error {
	if frame < 0 {
		return fmt.Errorf("%w: negative frame %d", failures.ErrOutOfRange, frame)
	}
	_ = os.Remove(outJPG)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-v", "error",
		"-i", inMP4,
		"-vf", selectFilter(frame),
		"-vsync", "0",
		"-frames:v", "1",
		"-q:v", "2",
		outJPG,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg extract frame %d: %v\n%s", failures.ErrDecode, frame, err, string(b))
	}
	if st, err := os.Stat(outJPG); err != nil || st.Size() == 0 {
		return fmt.Errorf("%w: frame %d is past the end of %s", failures.ErrOutOfRange, frame, inMP4)
	}
	return nil
}

func selectFilter(frame int) string {
	return `select=eq(n\,` + strconv.Itoa(frame) + `)`
}

func stderrOf(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		return "\n" + strings.TrimSpace(string(ee.Stderr))
	}
	return ""
}
