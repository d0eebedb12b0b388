package torrent

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/bencode"
)

const (
	minPieceLength = 1 << 15 // 32 KiB
	maxPieceLength = 1 << 24 // 16 MiB
	targetPieces   = 1500
)

// ErrNoContent is returned when nothing is left to hash after exclusions.
var ErrNoContent = errors.New("no files to include in torrent")

// Options describes the torrent to create.
type Options struct {
	// Path is the file or directory to share.
	Path        string   `json:"path"`
	AnnounceURL string   `json:"announce_url"`
	Source      string   `json:"source,omitempty"`
	Private     bool     `json:"private"`
	Exclude     []string `json:"exclude,omitempty"`
	// PieceLength overrides the automatic choice when positive.
	PieceLength int64  `json:"piece_length,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// File is one file in the torrent, with its path relative to the root.
type File struct {
	Path   []string `json:"path"`
	Length int64    `json:"length"`
}

// Plan is the scanned content: the file tree plus the chosen piece length.
type Plan struct {
	Root        string `json:"root"`
	Name        string `json:"name"`
	SingleFile  bool   `json:"single_file"`
	Files       []File `json:"files"`
	TotalSize   int64  `json:"total_size"`
	PieceLength int64  `json:"piece_length"`
}

// PieceCount returns the number of pieces the content hashes into.
func (p *Plan) PieceCount() int64 {
	if p.PieceLength <= 0 {
		return 0
	}
	return (p.TotalSize + p.PieceLength - 1) / p.PieceLength
}

// Scan walks opts.Path and returns the files to include, sorted by path.
func Scan(opts Options) (*Plan, error) {
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve content path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat content: %w", err)
	}
	for _, pattern := range opts.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}

	plan := &Plan{Root: root, Name: filepath.Base(root)}
	if !info.IsDir() {
		plan.SingleFile = true
		plan.Files = []File{{Path: []string{info.Name()}, Length: info.Size()}}
		plan.TotalSize = info.Size()
	} else {
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if p == root {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if excluded(rel, opts.Exclude) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			plan.Files = append(plan.Files, File{Path: strings.Split(rel, "/"), Length: fi.Size()})
			plan.TotalSize += fi.Size()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		sort.Slice(plan.Files, func(i, j int) bool {
			return strings.Join(plan.Files[i].Path, "/") < strings.Join(plan.Files[j].Path, "/")
		})
	}
	if len(plan.Files) == 0 || plan.TotalSize == 0 {
		return nil, ErrNoContent
	}

	plan.PieceLength = opts.PieceLength
	if plan.PieceLength <= 0 {
		plan.PieceLength = PieceLengthFor(plan.TotalSize)
	}
	return plan, nil
}

// excluded matches rel (slash separated) and its base name against patterns.
func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// PieceLengthFor picks a power-of-two piece length giving roughly
// targetPieces pieces, clamped to [32 KiB, 16 MiB].
func PieceLengthFor(total int64) int64 {
	length := int64(minPieceLength)
	for length < maxPieceLength && total/length > targetPieces {
		length <<= 1
	}
	return length
}

// Progress receives the bytes hashed so far and the total.
type Progress func(done, total int64)

// Hash reads the planned files in order and returns the concatenated SHA-1
// piece hashes. Cancellation is checked between pieces.
func Hash(ctx context.Context, plan *Plan, progress Progress) ([]byte, error) {
	pieces := make([]byte, 0, plan.PieceCount()*sha1.Size)
	buf := make([]byte, plan.PieceLength)
	filled := 0
	var done int64

	flush := func() {
		sum := sha1.Sum(buf[:filled])
		pieces = append(pieces, sum[:]...)
		done += int64(filled)
		filled = 0
		if progress != nil {
			progress(done, plan.TotalSize)
		}
	}

	for _, f := range plan.Files {
		p := plan.Root
		if !plan.SingleFile {
			p = filepath.Join(append([]string{plan.Root}, f.Path...)...)
		}
		file, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		for {
			if err := ctx.Err(); err != nil {
				file.Close()
				return nil, err
			}
			n, err := io.ReadFull(file, buf[filled:])
			filled += n
			if filled == len(buf) {
				flush()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if err != nil {
				file.Close()
				return nil, fmt.Errorf("read %s: %w", p, err)
			}
		}
		file.Close()
	}
	if filled > 0 {
		flush()
	}
	return pieces, nil
}

// Build returns the bencoded metainfo for a hashed plan.
func Build(plan *Plan, pieces []byte, opts Options, created time.Time) ([]byte, error) {
	if int64(len(pieces)) != plan.PieceCount()*sha1.Size {
		return nil, fmt.Errorf("piece hashes cover %d pieces, plan has %d", len(pieces)/sha1.Size, plan.PieceCount())
	}
	info := infoDict{
		Name:        plan.Name,
		PieceLength: plan.PieceLength,
		Pieces:      string(pieces),
		Source:      opts.Source,
	}
	if plan.SingleFile {
		info.Length = plan.TotalSize
	} else {
		info.Files = make([]fileEntry, 0, len(plan.Files))
		for _, f := range plan.Files {
			info.Files = append(info.Files, fileEntry{Length: f.Length, Path: f.Path})
		}
	}
	if opts.Private {
		info.Private = 1
	}
	data, err := bencode.EncodeBytes(metaFile{
		Announce:     opts.AnnounceURL,
		Comment:      opts.Comment,
		CreatedBy:    opts.CreatedBy,
		CreationDate: created.Unix(),
		Info:         info,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metainfo: %w", err)
	}
	return data, nil
}

// Create scans, hashes and writes a torrent to outPath atomically.
func Create(ctx context.Context, opts Options, outPath string, progress Progress) (*Plan, error) {
	plan, err := Scan(opts)
	if err != nil {
		return nil, err
	}
	pieces, err := Hash(ctx, plan, progress)
	if err != nil {
		return nil, err
	}
	data, err := Build(plan, pieces, opts, time.Now())
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(outPath, data); err != nil {
		return nil, err
	}
	return plan, nil
}

func writeFileAtomic(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create torrent directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write torrent: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename torrent: %w", err)
	}
	return nil
}

// OutputPath is where a torrent for content destined for tracker is written.
func OutputPath(dir, content, tracker string) string {
	name := filepath.Base(filepath.Clean(content))
	if tracker != "" {
		name += "." + tracker
	}
	return filepath.Join(dir, name+".torrent")
}
