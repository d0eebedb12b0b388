package screenshots

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"releasekit/internal/daemonproc"
	"releasekit/internal/media/ffprobe"
)

// TargetName is the daemonproc target that captures screenshots.
const TargetName = "screenshots.create"

// Request is the argument of the screenshots.create target.
type Request struct {
	Video     string `json:"video"`
	Count     int    `json:"count"`
	OutputDir string `json:"output_dir"`
	FFmpeg    string `json:"ffmpeg,omitempty"`
	FFprobe   string `json:"ffprobe,omitempty"`
}

func init() {
	daemonproc.Register(TargetName, runCapture)
}

// Timestamps returns count offsets in seconds that split duration into
// count+1 equal parts, skipping the very start and end.
func Timestamps(duration float64, count int) []float64 {
	if count <= 0 || duration <= 0 || math.IsNaN(duration) {
		return nil
	}
	step := duration / float64(count+1)
	out := make([]float64, count)
	for i := range out {
		out[i] = step * float64(i+1)
	}
	return out
}

// FileName returns the name of the index-th screenshot of video.
func FileName(video string, index int) string {
	stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return fmt.Sprintf("%s.%02d.png", stem, index+1)
}

// runCapture probes the duration, then sends each screenshot path as info.
// One failed frame is reported and does not stop the others.
func runCapture(ctx context.Context, in *daemonproc.Input, out *daemonproc.Output) error {
	var req Request
	if err := in.Args(&req); err != nil {
		return err
	}
	result, err := ffprobe.New(req.FFprobe).Inspect(ctx, req.Video)
	if err != nil {
		return err
	}
	stamps := Timestamps(result.DurationSeconds(), req.Count)
	if len(stamps) == 0 {
		return fmt.Errorf("%s: unknown duration", req.Video)
	}
	binary := strings.TrimSpace(req.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	captured := 0
	for i, at := range stamps {
		path := filepath.Join(req.OutputDir, FileName(req.Video, i))
		if err := capture(ctx, binary, req.Video, at, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = out.Error(err)
			continue
		}
		captured++
		if err := out.Info(path); err != nil {
			return err
		}
	}
	if captured == 0 {
		return errors.New("no screenshot could be captured")
	}
	return nil
}

func capture(ctx context.Context, binary, video string, at float64, path string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", video,
		"-frames:v", "1",
		"-y", path,
	}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg at %.3fs: %w: %s", at, err, strings.TrimSpace(string(output)))
	}
	return nil
}
