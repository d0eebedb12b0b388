package jobcache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestFileNameIsCanonical(t *testing.T) {
	a := FileName("torrent", []Arg{Value("tracker", "abc"), Value("private", true)})
	b := FileName("torrent", []Arg{Value("private", true), Value("tracker", "abc")})
	if a != b {
		t.Fatalf("argument order changed the key: %q vs %q", a, b)
	}
	if a != "torrent.private=true,tracker=abc.json" {
		t.Fatalf("unexpected filename %q", a)
	}
}

func TestFileNameWithoutArgs(t *testing.T) {
	if got := FileName("search", nil); got != "search.json" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestFileNameEscapesUnsafeBytes(t *testing.T) {
	got := FileName("media.info", []Arg{Value("path", "/srv/a:b,c=d")})
	want := "media%2Einfo.path=%2Fsrv%2Fa%3Ab%2Cc%3Dd.json"
	if got != want {
		t.Fatalf("FileName = %q, want %q", got, want)
	}
}

func TestPathArgsAreAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	rel := Path("content", "movie.mkv")
	abs := Path("content", filepath.Join(dir, "movie.mkv"))
	if rel != abs {
		t.Fatalf("relative %q and absolute %q differ", rel.Value, abs.Value)
	}
}

func TestNormalizationUnifiesKeys(t *testing.T) {
	composed := FileName("search", []Arg{Value("title", "Am\u00e9lie")})
	decomposed := FileName("search", []Arg{Value("title", "Ame\u0301lie")})
	if composed != decomposed {
		t.Fatalf("NFC forms differ: %q vs %q", composed, decomposed)
	}
}

func TestLongKeysAreTruncatedInTheMiddle(t *testing.T) {
	long := strings.Repeat("x", 400)
	name := FileName("torrent", []Arg{Value("content", long+"-end")})
	if len(name) > MaxFileNameLength {
		t.Fatalf("filename length %d exceeds %d", len(name), MaxFileNameLength)
	}
	if !strings.HasPrefix(name, "torrent.content=") {
		t.Fatalf("job name prefix lost: %q", name)
	}
	if !strings.HasSuffix(name, "-end.json") {
		t.Fatalf("tail lost: %q", name)
	}
	if !strings.Contains(name, "…") {
		t.Fatalf("no ellipsis marker: %q", name)
	}
	other := FileName("torrent", []Arg{Value("content", long+"y-end")})
	if other == name {
		t.Fatal("distinct long keys collided")
	}
}

func TestFileNameBoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,20}`).Draw(t, "name")
		n := rapid.IntRange(0, 5).Draw(t, "args")
		args := make([]Arg, 0, n)
		for i := 0; i < n; i++ {
			args = append(args, Value(
				rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "arg"),
				rapid.String().Draw(t, "value"),
			))
		}
		got := FileName(name, args)
		if len(got) > MaxFileNameLength {
			t.Fatalf("len(%q) = %d", got, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("invalid UTF-8 in %q", got)
		}
		if strings.ContainsAny(got, "/\\\x00") {
			t.Fatalf("unsafe byte in %q", got)
		}
		if got != FileName(name, args) {
			t.Fatal("FileName is not deterministic")
		}
	})
}

func TestStoreRoundTrip(t *testing.T) {
	store := New(t.TempDir(), nil)
	args := []Arg{Value("tracker", "abc")}

	if _, ok, err := store.Load("torrent", args); ok || err != nil {
		t.Fatalf("Load on empty store = %v, %v", ok, err)
	}
	want := []string{"/out/a.torrent", "second line"}
	if err := store.Save("torrent", args, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load("torrent", args)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Load = %v, want %v", got, want)
	}
	if _, ok, _ := store.Load("torrent", []Arg{Value("tracker", "xyz")}); ok {
		t.Fatal("different arguments hit the same entry")
	}
}

func TestStoreRefusesOutputThatWouldNotReplayExactly(t *testing.T) {
	store := New(t.TempDir(), nil)
	args := []Arg{Path("content", "/data/Caf\xe9")}
	err := store.Save("torrent", args, []string{"/data/torrents/Caf\xe9.torrent"})
	if !errors.Is(err, ErrNotUTF8) {
		t.Fatalf("Save = %v, want ErrNotUTF8", err)
	}
	if _, ok, err := store.Load("torrent", args); ok || err != nil {
		t.Fatalf("Load = %v, %v; want clean miss", ok, err)
	}
}

func TestStoreRoundTripIsExactProperty(t *testing.T) {
	store := New(t.TempDir(), nil)
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOfN(rapid.String(), 1, 5).Draw(t, "lines")
		if err := store.Save("prop", nil, lines); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, ok, err := store.Load("prop", nil)
		if err != nil || !ok {
			t.Fatalf("Load = %v, %v", ok, err)
		}
		if strings.Join(got, "\x00") != strings.Join(lines, "\x00") || len(got) != len(lines) {
			t.Fatalf("Load = %q, want %q", got, lines)
		}
	})
}

func TestStoreCorruptFileIsAMissWithError(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, nil)
	path := store.PathFor("mediainfo", nil)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := store.Load("mediainfo", nil); ok || err == nil {
		t.Fatalf("Load = %v, %v; want miss with error", ok, err)
	}
}

func TestStoreEmptyArrayIsAMiss(t *testing.T) {
	store := New(t.TempDir(), nil)
	if err := store.Save("mediainfo", nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok, err := store.Load("mediainfo", nil); ok || err != nil {
		t.Fatalf("Load = %v, %v; want clean miss", ok, err)
	}
}

func TestDisabledStore(t *testing.T) {
	var nilStore *Store
	for _, store := range []*Store{nilStore, New("", nil)} {
		if store.Enabled() {
			t.Fatal("store should be disabled")
		}
		if err := store.Save("x", nil, []string{"a"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if _, ok, err := store.Load("x", nil); ok || err != nil {
			t.Fatalf("Load = %v, %v", ok, err)
		}
	}
}

func TestListAndClear(t *testing.T) {
	store := New(t.TempDir(), nil)
	if err := store.Save("torrent", []Arg{Value("t", 1)}, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("search", nil, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	jobs := map[string]int{}
	for _, e := range entries {
		jobs[e.Job] = e.Lines
	}
	if jobs["torrent"] != 1 || jobs["search"] != 2 {
		t.Fatalf("unexpected entries %+v", entries)
	}

	removed, err := store.Clear()
	if err != nil || removed != 2 {
		t.Fatalf("Clear = %d, %v", removed, err)
	}
	if entries, _ := store.List(); len(entries) != 0 {
		t.Fatalf("entries left after Clear: %+v", entries)
	}
}
