package torrent

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/bencode"
)

// ErrMalformed is returned for data that is not a usable torrent file.
var ErrMalformed = errors.New("malformed torrent")

type fileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

type infoDict struct {
	Files       []fileEntry `bencode:"files,omitempty"`
	Length      int64       `bencode:"length,omitempty"`
	Name        string      `bencode:"name"`
	PieceLength int64       `bencode:"piece length"`
	Pieces      string      `bencode:"pieces"`
	Private     int         `bencode:"private,omitempty"`
	Source      string      `bencode:"source,omitempty"`
}

type metaFile struct {
	Announce     string   `bencode:"announce,omitempty"`
	Comment      string   `bencode:"comment,omitempty"`
	CreatedBy    string   `bencode:"created by,omitempty"`
	CreationDate int64    `bencode:"creation date"`
	Info         infoDict `bencode:"info"`
}

// rawMetaFile keeps the info dictionary's exact bytes for the info hash.
type rawMetaFile struct {
	Announce string             `bencode:"announce"`
	Info     bencode.RawMessage `bencode:"info"`
}

// Metainfo is the parsed subset of a torrent file.
type Metainfo struct {
	Announce    string
	Name        string
	Source      string
	Private     bool
	PieceLength int64
	TotalSize   int64
	Files       []File
	InfoHash    [sha1.Size]byte
}

// InfoHashHex returns the info hash in lowercase hex.
func (m *Metainfo) InfoHashHex() string {
	return fmt.Sprintf("%x", m.InfoHash[:])
}

// Parse reads a torrent file's contents.
func Parse(data []byte) (*Metainfo, error) {
	var raw rawMetaFile
	if err := bencode.DecodeBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw.Info) == 0 {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrMalformed)
	}
	var info infoDict
	if err := bencode.DecodeBytes(raw.Info, &info); err != nil {
		return nil, fmt.Errorf("%w: info dictionary: %v", ErrMalformed, err)
	}

	m := &Metainfo{
		Announce:    raw.Announce,
		Name:        info.Name,
		Source:      info.Source,
		Private:     info.Private == 1,
		PieceLength: info.PieceLength,
		InfoHash:    sha1.Sum(raw.Info),
	}
	if len(info.Files) == 0 {
		m.TotalSize = info.Length
		m.Files = []File{{Path: []string{info.Name}, Length: info.Length}}
	}
	for _, f := range info.Files {
		m.Files = append(m.Files, File{Path: f.Path, Length: f.Length})
		m.TotalSize += f.Length
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: torrent has no name", ErrMalformed)
	}
	return m, nil
}

// ReadFile parses the torrent at p.
func ReadFile(p string) (*Metainfo, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read torrent: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(p), err)
	}
	return m, nil
}
