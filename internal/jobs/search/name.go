package search

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"releasekit/internal/fileutil"
)

// Query is what a release name says about its title.
type Query struct {
	Title  string
	Year   int
	Kind   string // "movie", "tv" or "" when unknown
	Season int
}

var (
	yearPattern    = regexp.MustCompile(`^(19|20)\d{2}$`)
	episodePattern = regexp.MustCompile(`(?i)^s(\d{1,2})(e\d{1,3})*$`)
	seasonPattern  = regexp.MustCompile(`(?i)^season$`)
	separators     = regexp.MustCompile(`[._\s]+`)
)

// releaseTags end the title part of a scene-style name.
var releaseTags = map[string]struct{}{
	"480p": {}, "576p": {}, "720p": {}, "1080p": {}, "1080i": {}, "2160p": {}, "4k": {}, "uhd": {},
	"bluray": {}, "blu-ray": {}, "bdrip": {}, "brrip": {}, "remux": {}, "web": {}, "web-dl": {}, "webrip": {},
	"hdtv": {}, "dvdrip": {}, "dvd": {}, "hdr": {}, "hdr10": {}, "dv": {}, "x264": {}, "x265": {},
	"h264": {}, "h265": {}, "hevc": {}, "avc": {}, "proper": {}, "repack": {}, "extended": {},
	"unrated": {}, "complete": {}, "multi": {},
}

// ParseReleaseName extracts the title, year and kind from a release file or
// directory name such as "Some.Movie.2001.1080p.BluRay.x264-GRP".
func ParseReleaseName(name string) Query {
	base := filepath.Base(strings.TrimSpace(name))
	if fileutil.IsVideo(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	// Drop the trailing "-GROUP".
	if idx := strings.LastIndex(base, "-"); idx > 0 && strings.ContainsAny(base[:idx], "._ ") && !strings.ContainsAny(base[idx+1:], "._ ") {
		base = base[:idx]
	}
	tokens := separators.Split(base, -1)

	var q Query
	var title []string
	for i, token := range tokens {
		if token == "" {
			continue
		}
		clean := strings.Trim(token, "()[]")
		lower := strings.ToLower(clean)
		// A year as the first word is part of the title ("2001 A Space Odyssey").
		if yearPattern.MatchString(clean) && len(title) > 0 {
			q.Year, _ = strconv.Atoi(clean)
			break
		}
		if m := episodePattern.FindStringSubmatch(clean); m != nil {
			q.Kind = "tv"
			q.Season, _ = strconv.Atoi(m[1])
			break
		}
		if seasonPattern.MatchString(clean) && i+1 < len(tokens) {
			if n, err := strconv.Atoi(tokens[i+1]); err == nil {
				q.Kind = "tv"
				q.Season = n
				break
			}
		}
		if _, tag := releaseTags[lower]; tag && len(title) > 0 {
			break
		}
		title = append(title, clean)
	}
	q.Title = strings.Join(title, " ")
	if q.Kind == "" && q.Year > 0 {
		q.Kind = "movie"
	}
	return q
}
