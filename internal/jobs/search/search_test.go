package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"releasekit/internal/httpcache"
	"releasekit/internal/identification/tmdb"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

func TestParseReleaseName(t *testing.T) {
	tests := []struct {
		in   string
		want Query
	}{
		{"Some.Movie.2001.1080p.BluRay.x264-GRP", Query{Title: "Some Movie", Year: 2001, Kind: "movie"}},
		{"/srv/Some Movie (2001)/Some.Movie.2001.mkv", Query{Title: "Some Movie", Year: 2001, Kind: "movie"}},
		{"2001.A.Space.Odyssey.1968.2160p.UHD-GRP", Query{Title: "2001 A Space Odyssey", Year: 1968, Kind: "movie"}},
		{"Show.Name.S02E05.720p.HDTV-GRP", Query{Title: "Show Name", Kind: "tv", Season: 2}},
		{"Show Name Season 3 1080p", Query{Title: "Show Name", Kind: "tv", Season: 3}},
		{"Spider-Man", Query{Title: "Spider-Man"}},
		{"Untitled.Project.1080p.WEB-DL", Query{Title: "Untitled Project"}},
	}
	for _, tt := range tests {
		if got := ParseReleaseName(tt.in); got != tt.want {
			t.Errorf("ParseReleaseName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestBestMatchPrefersTitleAndYear(t *testing.T) {
	results := []tmdb.Result{
		{ID: 1, Title: "Some Movie", ReleaseDate: "1987-01-01", MediaType: "movie", VoteAverage: 7, VoteCount: 900},
		{ID: 2, Title: "Some Movie", ReleaseDate: "2001-06-01", MediaType: "movie", VoteAverage: 6, VoteCount: 100},
		{ID: 3, Title: "Unrelated Thing", ReleaseDate: "2001-01-01", MediaType: "movie", VoteAverage: 9, VoteCount: 9000},
	}
	best := bestMatch(logging.NewNop(), Query{Title: "Some Movie", Year: 2001}, results)
	if best == nil || best.ID != 2 {
		t.Fatalf("best = %+v", best)
	}
	if got := bestMatch(logging.NewNop(), Query{Title: "Nothing Alike"}, results); got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

type fakeSearcher struct {
	calls atomic.Int32
	resp  *tmdb.Response
	err   error
}

func (f *fakeSearcher) do() (*tmdb.Response, error) {
	f.calls.Add(1)
	return f.resp, f.err
}

func (f *fakeSearcher) SearchMovieWithOptions(context.Context, string, tmdb.SearchOptions) (*tmdb.Response, error) {
	return f.do()
}

func (f *fakeSearcher) SearchTVWithOptions(context.Context, string, tmdb.SearchOptions) (*tmdb.Response, error) {
	return f.do()
}

func (f *fakeSearcher) SearchMultiWithOptions(context.Context, string, tmdb.SearchOptions) (*tmdb.Response, error) {
	return f.do()
}

func run(t *testing.T, j *job.Job) {
	t.Helper()
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil && ctx.Err() != nil {
		t.Fatal(err)
	}
}

func TestSearchJobOutputsMatch(t *testing.T) {
	searcher := &fakeSearcher{resp: &tmdb.Response{Results: []tmdb.Result{
		{ID: 42, Title: "Some Movie", ReleaseDate: "2001-06-01", MediaType: "movie", VoteAverage: 7},
	}}}
	store := jobcache.New(t.TempDir(), nil)
	opts := Options{Release: "Some.Movie.2001.1080p.BluRay.x264-GRP", Searcher: searcher}
	j, err := New(job.Options{Cache: store}, opts)
	if err != nil {
		t.Fatal(err)
	}
	run(t, j)
	if want := []string{"tmdb:movie/42", "Some Movie (2001)"}; !reflect.DeepEqual(j.Output(), want) {
		t.Fatalf("output = %v", j.Output())
	}

	again, _ := New(job.Options{Cache: store}, opts)
	run(t, again)
	if !again.FromCache() || searcher.calls.Load() != 1 {
		t.Fatalf("second run searched again (calls=%d)", searcher.calls.Load())
	}
}

func TestSearchJobNoMatchAndFailure(t *testing.T) {
	none, _ := New(job.Options{}, Options{Release: "Some.Movie.2001", Searcher: &fakeSearcher{resp: &tmdb.Response{}}})
	run(t, none)
	if errs := none.Errors(); len(errs) != 1 || !errors.Is(errs[0], services.ErrNotFound) {
		t.Fatalf("errors = %v", errs)
	}
	if code, _ := none.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d", code)
	}

	failing, _ := New(job.Options{}, Options{Release: "Some.Movie.2001", Searcher: &fakeSearcher{err: errors.New("503")}})
	run(t, failing)
	if !errors.Is(failing.Fatal(), services.ErrTransient) {
		t.Fatalf("fatal = %v", failing.Fatal())
	}
}

func TestSearchJobValidation(t *testing.T) {
	if _, err := New(job.Options{}, Options{Release: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing searcher: %v", err)
	}
	if _, err := New(job.Options{}, Options{Release: " ", Searcher: &fakeSearcher{}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty release: %v", err)
	}
}

func TestSearchThroughHTTPCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"results":[{"id":7,"title":"Some Movie","release_date":"2001-01-01"}]}`))
	}))
	defer server.Close()

	cache, err := httpcache.Open(filepath.Join(t.TempDir(), "http.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	client, err := tmdb.New("key", server.URL, "en-US",
		tmdb.WithHTTPClient(&http.Client{Transport: &httpcache.Transport{Store: cache, MaxAge: time.Hour}}))
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		j, err := New(job.Options{}, Options{Release: "Some.Movie.2001", Searcher: client})
		if err != nil {
			t.Fatal(err)
		}
		run(t, j)
		if want := []string{"tmdb:movie/7", "Some Movie (2001)"}; !reflect.DeepEqual(j.Output(), want) {
			t.Fatalf("output = %v", j.Output())
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d", hits.Load())
	}
}
