package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"releasekit/internal/config"
	"releasekit/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunCompleted(context.Background(), notifications.RunSummary{Command: "submit"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func capture(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	var got captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func service(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	return notifications.NewService(&cfg)
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "run completed",
			send: func(s notifications.Service) error {
				return s.NotifyRunCompleted(context.Background(), notifications.RunSummary{
					Command: "submit", Release: "Some.Movie.2001", Tracker: "abc",
					Duration: 95*time.Second + 400*time.Millisecond, URL: "https://tracker.example/t/1",
				})
			},
			expectTitle:   "releasekit - Complete",
			expectMessage: "Some.Movie.2001 (abc) done in 1m35s\nhttps://tracker.example/t/1",
			expectTags:    "releasekit,submit,completed",
		},
		{
			name: "run failed",
			send: func(s notifications.Service) error {
				return s.NotifyRunCompleted(context.Background(), notifications.RunSummary{
					Command: "mediainfo", Release: "Some.Movie.2001", Failed: []string{"Mediainfo"}, Duration: time.Second,
				})
			},
			expectTitle:    "releasekit - Failed",
			expectMessage:  "Some.Movie.2001 failed after 1s: Mediainfo",
			expectTags:     "releasekit,mediainfo,failed",
			expectPriority: "high",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("config missing"), "submit")
			},
			expectTitle:    "releasekit - Error",
			expectMessage:  "Error with submit: config missing",
			expectTags:     "releasekit,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := capture(t, http.StatusOK)
			if err := tc.send(service(server.URL)); err != nil {
				t.Fatalf("send: %v", err)
			}
			if got.title != tc.expectTitle || got.body != tc.expectMessage || got.tags != tc.expectTags || got.priority != tc.expectPriority {
				t.Fatalf("got %+v", *got)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server, _ := capture(t, http.StatusInternalServerError)
	err := service(server.URL).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 500") {
		t.Fatalf("err = %v", err)
	}
}
