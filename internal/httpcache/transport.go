package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"releasekit/internal/logging"
)

// secretParams never take part in cache keys.
var secretParams = map[string]struct{}{
	"api_key":      {},
	"apikey":       {},
	"access_token": {},
	"token":        {},
}

// Key returns the cache key of a GET request: the URL with its query sorted
// and secret parameters removed.
func Key(u *url.URL) string {
	clone := *u
	query := clone.Query()
	for name := range query {
		if _, secret := secretParams[strings.ToLower(name)]; secret {
			query.Del(name)
		}
	}
	keys := make([]string, 0, len(query))
	for name := range query {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, name := range keys {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for j, v := range values {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	clone.RawQuery = b.String()
	clone.Fragment = ""
	clone.User = nil
	return clone.String()
}

// Transport serves GET requests from a Store and records 200 responses.
type Transport struct {
	Store  *Store
	MaxAge time.Duration
	// Base performs uncached requests; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Bypass skips lookups but still records fresh responses.
	Bypass bool
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Store == nil || req.Method != http.MethodGet {
		return t.base().RoundTrip(req)
	}
	key := Key(req.URL)
	ctx := req.Context()
	if !t.Bypass {
		entry, ok, err := t.Store.Get(ctx, key, t.MaxAge)
		if err != nil {
			t.Store.logger.Warn("http cache lookup failed", logging.String("key", key), logging.Error(err))
		} else if ok {
			t.Store.logger.Debug("http cache hit", logging.String("key", key))
			return cachedResponse(req, entry), nil
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	entry := Entry{Key: key, Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}
	if err := t.Store.Put(context.WithoutCancel(ctx), entry); err != nil {
		t.Store.logger.Warn("http cache store failed", logging.String("key", key), logging.Error(err))
	}
	return resp, nil
}

func cachedResponse(req *http.Request, e Entry) *http.Response {
	header := http.Header{}
	if e.ContentType != "" {
		header.Set("Content-Type", e.ContentType)
	}
	header.Set("X-Releasekit-Cache", "hit")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
