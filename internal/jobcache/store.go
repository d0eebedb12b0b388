package jobcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"releasekit/internal/logging"
)

const lockFileName = ".jobcache.lock"

// ErrNotUTF8 reports output that JSON cannot store byte for byte.
var ErrNotUTF8 = errors.New("jobcache: output line is not valid UTF-8")

// Store reads and writes job cache files in one directory. A Store with an
// empty directory (or a nil *Store) is disabled: loads miss and saves are
// dropped.
type Store struct {
	dir    string
	logger *slog.Logger
	lock   *flock.Flock
}

// Entry describes one cache file.
type Entry struct {
	File    string
	Job     string
	Lines   int
	Size    int64
	ModTime time.Time
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string, logger *slog.Logger) *Store {
	s := &Store{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "jobcache"),
	}
	if s.dir != "" {
		s.lock = flock.New(filepath.Join(s.dir, lockFileName))
	}
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Enabled reports whether the store persists anything.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// PathFor returns the cache file path for a job, or "" when disabled.
func (s *Store) PathFor(name string, args []Arg) string {
	if !s.Enabled() {
		return ""
	}
	return filepath.Join(s.dir, FileName(name, args))
}

// Load returns the cached output for a job. A missing file, an empty entry,
// or a disabled store reports a miss with a nil error. A file that exists but
// cannot be read or parsed reports a miss with the error.
func (s *Store) Load(name string, args []Arg) ([]string, bool, error) {
	path := s.PathFor(name, args)
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}
	var output []string
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, false, fmt.Errorf("parse cache file %s: %w", filepath.Base(path), err)
	}
	if len(output) == 0 {
		return nil, false, nil
	}
	s.logger.Debug("job cache hit",
		logging.String(logging.FieldJob, name),
		logging.String("path", path),
		logging.Int("lines", len(output)))
	return output, true, nil
}

// Save writes output for a job atomically. Output with a line that is not
// valid UTF-8 is not saved, since the replay would differ from it.
func (s *Store) Save(name string, args []Arg, output []string) error {
	path := s.PathFor(name, args)
	if path == "" {
		return nil
	}
	for i, line := range output {
		if !utf8.ValidString(line) {
			return fmt.Errorf("%w: line %d of %s", ErrNotUTF8, i+1, name)
		}
	}
	if output == nil {
		output = []string{}
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache directory: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release cache lock", logging.Error(err))
		}
	}()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	s.logger.Debug("job cache written",
		logging.String(logging.FieldJob, name),
		logging.String("path", path),
		logging.Int("lines", len(output)))
	return nil
}

// Remove deletes one job's cache file. Removing a missing entry is not an
// error.
func (s *Store) Remove(name string, args []Arg) error {
	path := s.PathFor(name, args)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// List returns all cache entries, newest first.
func (s *Store) List() ([]Entry, error) {
	if !s.Enabled() {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !isEntryFile(de) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entry := Entry{
			File:    de.Name(),
			Job:     jobName(de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if data, err := os.ReadFile(filepath.Join(s.dir, de.Name())); err == nil {
			var output []string
			if json.Unmarshal(data, &output) == nil {
				entry.Lines = len(output)
			}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

// Clear removes every cache file and returns how many were removed.
func (s *Store) Clear() (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache directory: %w", err)
	}
	removed := 0
	var errs []error
	for _, de := range dirEntries {
		if !isEntryFile(de) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, de.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.logger.Debug("job cache cleared", logging.Int("removed", removed))
	return removed, errors.Join(errs...)
}

func isEntryFile(de fs.DirEntry) bool {
	name := de.Name()
	return de.Type().IsRegular() && strings.HasSuffix(name, fileExt) && !strings.HasPrefix(name, ".")
}

// jobName recovers the job name from a cache filename.
func jobName(file string) string {
	stem := strings.TrimSuffix(file, fileExt)
	if idx := strings.IndexByte(stem, '.'); idx >= 0 {
		stem = stem[:idx]
	}
	return stem
}
