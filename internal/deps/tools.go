package deps

import "releasekit/internal/config"

// Tools lists the binaries the configured jobs run. ffmpeg is only needed
// while screenshots are enabled.
func Tools(cfg *config.Config) []Tool {
	return []Tool{
		{
			Name:    "FFprobe",
			Command: cfg.FFprobeBinary(),
			UsedBy:  []string{"mediainfo", "screenshots"},
		},
		{
			Name:     "FFmpeg",
			Command:  cfg.FFmpegBinary(),
			UsedBy:   []string{"screenshots"},
			Optional: cfg.Jobs.ScreenshotCount == 0,
		},
	}
}
