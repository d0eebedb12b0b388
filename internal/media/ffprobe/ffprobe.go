package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"releasekit/internal/language"
)

// Result is the parsed ffprobe output.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream in the container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Profile    string            `json:"profile"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	FrameRate  string            `json:"avg_frame_rate"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Layout     string            `json:"channel_layout"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// Language returns the stream's language as an ISO 639-2 code, or "und".
func (s Stream) Language() string {
	return language.ToISO3(language.ExtractFromTags(s.Tags))
}

// Format is the container-level metadata.
type Format struct {
	Filename   string            `json:"filename"`
	NBStreams  int               `json:"nb_streams"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	LongName   string            `json:"format_long_name"`
	Tags       map[string]string `json:"tags"`
}

// Executor runs a binary and returns its standard output.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Prober runs ffprobe.
type Prober struct {
	binary string
	exec   Executor
}

// Option configures a Prober.
type Option func(*Prober)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) Option {
	return func(p *Prober) {
		if e != nil {
			p.exec = e
		}
	}
}

// New returns a prober for binary, defaulting to "ffprobe".
func New(binary string, opts ...Option) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	p := &Prober{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Inspect probes path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	output, err := p.exec.Output(ctx, p.binary, args)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// StreamCount returns the number of streams of codecType.
func (r Result) StreamCount(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, 0 when absent
// and NaN when unparsable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// Duration returns the container duration, or 0 when unknown.
func (r Result) Duration() time.Duration {
	secs := r.DurationSeconds()
	if math.IsNaN(secs) || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// SizeBytes returns the container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	return nonNegative(parseFloat(r.Format.Size))
}

// BitRate returns the container bitrate in bits per second, or 0.
func (r Result) BitRate() int64 {
	return nonNegative(parseFloat(r.Format.BitRate))
}

// Summary renders the result as text lines: one for the container and one
// per stream.
func (r Result) Summary() []string {
	lines := []string{r.containerLine()}
	for _, s := range r.Streams {
		lines = append(lines, streamLine(s))
	}
	return lines
}

func (r Result) containerLine() string {
	parts := []string{"Container: " + firstNonEmpty(r.Format.LongName, r.Format.FormatName, "unknown")}
	if d := r.Duration(); d > 0 {
		parts = append(parts, "duration "+formatClock(d))
	}
	if size := r.SizeBytes(); size > 0 {
		parts = append(parts, "size "+humanize.IBytes(uint64(size)))
	}
	if rate := r.BitRate(); rate > 0 {
		parts = append(parts, fmt.Sprintf("bitrate %s/s", humanize.SI(float64(rate), "b")))
	}
	return strings.Join(parts, ", ")
}

func streamLine(s Stream) string {
	kind := strings.ToLower(s.CodecType)
	parts := []string{fmt.Sprintf("#%d %s: %s", s.Index, firstNonEmpty(kind, "data"), firstNonEmpty(s.CodecName, "unknown"))}
	if s.Profile != "" {
		parts = append(parts, s.Profile)
	}
	switch kind {
	case "video":
		if s.Width > 0 && s.Height > 0 {
			parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height))
		}
		if fps := frameRate(s.FrameRate); fps > 0 {
			parts = append(parts, strconv.FormatFloat(fps, 'f', 3, 64)+" fps")
		}
	case "audio":
		if s.Layout != "" {
			parts = append(parts, s.Layout)
		} else if s.Channels > 0 {
			parts = append(parts, fmt.Sprintf("%d ch", s.Channels))
		}
		if s.SampleRate != "" {
			parts = append(parts, s.SampleRate+" Hz")
		}
	}
	if kind == "audio" || kind == "subtitle" {
		parts = append(parts, s.Language())
	}
	if title := strings.TrimSpace(s.Tags["title"]); title != "" {
		parts = append(parts, strconv.Quote(title))
	}
	return strings.Join(parts, ", ")
}

// frameRate parses ffprobe's "num/den" rates.
func frameRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		return parseFloat(value)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonNegative(v float64) int64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return int64(v)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
