// Package deps reports whether the external tools the release jobs shell out
// to are installed, and which versions.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds each "-version" call.
const versionTimeout = 5 * time.Second

// Tool is an external binary some jobs need.
type Tool struct {
	Name    string
	Command string
	// UsedBy names the jobs that run the tool.
	UsedBy []string
	// Optional tools only matter when a job that uses them is enabled.
	Optional bool
}

// Status is the result of looking a Tool up.
type Status struct {
	Tool
	Path    string
	Version string
	Problem string
}

// Found reports whether the binary was located.
func (s Status) Found() bool { return s.Path != "" }

// Check resolves each tool on PATH and asks it for its version. A tool that
// is found but will not report a version is still usable.
func Check(ctx context.Context, tools []Tool) []Status {
	statuses := make([]Status, 0, len(tools))
	for _, tool := range tools {
		tool.Command = strings.TrimSpace(tool.Command)
		status := Status{Tool: tool}
		switch path, err := exec.LookPath(tool.Command); {
		case tool.Command == "":
			status.Problem = "command not configured"
		case err != nil:
			status.Problem = "not found on PATH"
		default:
			status.Path = path
			status.Version = version(ctx, path)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// version runs "<path> -version", the flag ffmpeg and ffprobe share, and
// returns the word after "version" on the first line.
func version(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	scanner := bufio.NewScanner(bytes.NewReader(line))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		if scanner.Text() == "version" && scanner.Scan() {
			return scanner.Text()
		}
	}
	return ""
}

// Missing returns the required tools that were not found.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Found() && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
