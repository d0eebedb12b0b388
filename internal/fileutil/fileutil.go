// Package fileutil holds small filesystem helpers shared by the jobs.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// VideoExtensions lists the extensions treated as video content.
var VideoExtensions = []string{".mkv", ".mp4", ".m2ts", ".ts", ".avi", ".mov", ".wmv", ".webm"}

// ErrNoVideo is returned when content holds no video file.
var ErrNoVideo = errors.New("no video file found")

// CopyIntoDir copies src into dir under its own base name and returns the
// destination. The copy is verified and renamed into place, so a process
// watching dir never sees a partial file.
func CopyIntoDir(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := CopyFileVerified(src, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("move into %s: %w", dir, err)
	}
	return dst, nil
}

// CopyFileVerified streams src to dst and compares SHA-256 digests and sizes
// of both sides. dst is removed on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// IsVideo reports whether p has a video extension.
func IsVideo(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, candidate := range VideoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// MainVideo returns the largest video file in content, or content itself
// when it is a video file. Ties go to the first path in lexical order.
func MainVideo(content string) (string, error) {
	info, err := os.Stat(content)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		if IsVideo(content) {
			return content, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoVideo, content)
	}

	type candidate struct {
		path string
		size int64
	}
	var videos []candidate
	err = filepath.WalkDir(content, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !IsVideo(p) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		videos = append(videos, candidate{path: p, size: fi.Size()})
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoVideo, content)
	}
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].size != videos[j].size {
			return videos[i].size > videos[j].size
		}
		return videos[i].path < videos[j].path
	})
	return videos[0].path, nil
}
