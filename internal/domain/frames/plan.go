package frames

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/forPelevin/text2splat/internal/domain/failures"
)

// DefaultTimestamps are the offsets (seconds) sampled from every generated clip.
// Two views per second-long window keep the camera baseline small enough for
// reconstruction.
var DefaultTimestamps = []float64{0.3, 0.7, 2.3, 2.7, 4.3, 4.7}

// Target is one frame to pull out of the video.
type Target struct {
	Position  int
	Timestamp float64
	Frame     int
	File      string
}

func FrameIndex(ts, fps float64) int {
	return int(math.Floor(ts * fps))
}

func FileName(position int) string {
	return strconv.Itoa(position) + ".jpg"
}

// Plan maps timestamps to frame indices in configured order. frameCount < 0
// means the stream length is unknown and no bound check is made.
func Plan(timestamps []float64, fps float64, frameCount int) ([]Target, error) {
	if len(timestamps) == 0 {
		return nil, errors.New("no timestamps configured")
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("%w: invalid frame rate %v", failures.ErrDecode, fps)
	}

	out := make([]Target, 0, len(timestamps))
	for i, ts := range timestamps {
		if ts < 0 || math.IsNaN(ts) {
			return nil, fmt.Errorf("invalid timestamp %v", ts)
		}
		idx := FrameIndex(ts, fps)
		if frameCount >= 0 && idx >= frameCount {
			return nil, fmt.Errorf(
				"%w: %.2fs is frame %d but the stream has %d frames",
				failures.ErrOutOfRange, ts, idx, frameCount,
			)
		}
		out = append(out, Target{Position: i, Timestamp: ts, Frame: idx, File: FileName(i)})
	}
	return out, nil
}
