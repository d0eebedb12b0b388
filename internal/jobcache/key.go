package jobcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFileNameLength bounds cache filenames in bytes, under the common
	// 255-byte filesystem limit.
	MaxFileNameLength = 250

	fileExt      = ".json"
	ellipsis     = "…"
	digestLength = 8
)

// Arg is one named job argument contributing to the cache key.
type Arg struct {
	Name  string
	Value string
}

// Path returns an argument for a filesystem path, made absolute.
func Path(name, path string) Arg {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	} else {
		path = filepath.Clean(path)
	}
	return Arg{Name: name, Value: path}
}

// Value returns an argument for any other value, formatted with fmt.
func Value(name string, v any) Arg {
	return Arg{Name: name, Value: fmt.Sprint(v)}
}

// Canonical renders args as name=value pairs sorted by name and joined by
// commas, with unsafe bytes escaped.
func Canonical(args []Arg) string {
	sorted := make([]Arg, len(args))
	copy(sorted, args)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, arg := range sorted {
		parts = append(parts, escape(norm.NFC.String(arg.Name))+"="+escape(norm.NFC.String(arg.Value)))
	}
	return strings.Join(parts, ",")
}

// FileName returns the cache filename for a job.
func FileName(name string, args []Arg) string {
	// Dots in the name would blur the name/argument boundary.
	prefix := strings.ReplaceAll(escape(norm.NFC.String(name)), ".", "%2E")
	stem := prefix
	if canonical := Canonical(args); canonical != "" {
		stem += "." + canonical
	}
	budget := MaxFileNameLength - len(fileExt)
	if len(stem) <= budget {
		return stem + fileExt
	}
	return truncateMiddle(stem, budget, len(prefix)+1) + fileExt
}

// truncateMiddle shortens s to at most budget bytes by replacing its middle
// with a digest of the whole string. The first keep bytes (the job name) are
// preserved when there is room.
func truncateMiddle(s string, budget, keep int) string {
	sum := sha256.Sum256([]byte(s))
	marker := ellipsis + hex.EncodeToString(sum[:])[:digestLength] + ellipsis
	room := budget - len(marker)
	if room < 2 {
		return hex.EncodeToString(sum[:])
	}

	head := room / 2
	if keep < room && head < keep {
		head = keep
	}
	tail := room - head

	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	start := len(s) - tail
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[:head] + marker + s[start:]
}

// escape percent-encodes bytes that are unsafe in filenames or that would make
// the key ambiguous.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '%', '/', '\\', ':', '*', '?', '"', '<', '>', '|', ',', '=':
		return true
	}
	return false
}
