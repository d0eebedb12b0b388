package httpcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "http.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKeyDropsSecretsAndSortsQuery(t *testing.T) {
	a, _ := url.Parse("https://api.example/search/movie?query=Alien&api_key=one&year=1979")
	b, _ := url.Parse("https://api.example/search/movie?year=1979&api_key=two&query=Alien")
	if Key(a) != Key(b) {
		t.Fatalf("keys differ: %s vs %s", Key(a), Key(b))
	}
	if got := Key(a); got != "https://api.example/search/movie?query=Alien&year=1979" {
		t.Fatalf("Key = %s", got)
	}
}

func TestStoreGetPutAndExpiry(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	if _, ok, err := store.Get(ctx, "k", time.Hour); err != nil || ok {
		t.Fatalf("empty Get = %v, %v", ok, err)
	}
	if err := store.Put(ctx, Entry{Key: "k", Status: 200, Body: []byte("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, Entry{Key: "k", Status: 200, Body: []byte("v2")}); err != nil {
		t.Fatal(err)
	}
	entry, ok, err := store.Get(ctx, "k", time.Hour)
	if err != nil || !ok || string(entry.Body) != "v2" {
		t.Fatalf("Get = %q, %v, %v", entry.Body, ok, err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := store.Get(ctx, "k", time.Hour); ok {
		t.Fatal("expired entry served")
	}
	if _, ok, _ := store.Get(ctx, "k", 0); !ok {
		t.Fatal("unbounded max age should serve old entry")
	}
	removed, err := store.Purge(ctx, time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("Purge = %d, %v", removed, err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("Count = %d", n)
	}
}

func TestReopenKeepsEntriesAndChecksVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "http.db")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), Entry{Key: "k", Status: 200, Body: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()
	if _, err := Open(path, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("Open = %v", err)
	}
}

func TestTransportCachesSuccessfulGets(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	store := openStore(t)
	client := &http.Client{Transport: &Transport{Store: store, MaxAge: time.Hour}}
	get := func(path string) (int, string, string) {
		t.Helper()
		resp, err := client.Get(server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body), resp.Header.Get("X-Releasekit-Cache")
	}

	if code, body, cached := get("/ok?api_key=a"); code != 200 || body != `{"ok":true}` || cached != "" {
		t.Fatalf("first = %d %s %s", code, body, cached)
	}
	if code, body, cached := get("/ok?api_key=b"); code != 200 || body != `{"ok":true}` || cached != "hit" {
		t.Fatalf("second = %d %s %s", code, body, cached)
	}
	get("/fail")
	get("/fail")
	if hits.Load() != 3 {
		t.Fatalf("server hits = %d", hits.Load())
	}

	bypass := &http.Client{Transport: &Transport{Store: store, Bypass: true}}
	resp, err := bypass.Get(server.URL + "/ok")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if hits.Load() != 4 {
		t.Fatalf("bypass did not reach server (hits=%d)", hits.Load())
	}
}
