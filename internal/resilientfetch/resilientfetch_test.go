package resilientfetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"

	"blogwatch/internal/engineerr"
)

func hostOf(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return u.Hostname()
}

func TestFetch_Retries406WithGenericAccept(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			if r.Header.Get("Accept") == "*/*" {
				t.Error("first attempt should use the browser-mimicking Accept header, not generic")
			}
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		if r.Header.Get("Accept") != "*/*" {
			t.Errorf("retry after 406 should use a generic Accept header, got %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body: %q", body)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestFetch_BotGatedHostReturnsBotChallengedOn403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000, BotGatedHosts: []string{hostOf(t, server.URL)}})
	_, err := c.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error from a 403 response")
	}
	if !engineerr.Is(err, engineerr.KindBotChallenged) {
		t.Errorf("expected KindBotChallenged for a bot-gated host, got %v", err)
	}
}

func TestFetch_NonBotGatedHostTreats403AsPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	_, err := c.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error from a 403 response")
	}
	if engineerr.Is(err, engineerr.KindBotChallenged) {
		t.Error("a 403 from a host not on the bot-gated list must not be classified as bot-challenged")
	}
	if !engineerr.Is(err, engineerr.KindNetwork) {
		t.Errorf("expected KindNetwork for a non-bot-gated permanent failure, got %v", err)
	}
}

func TestFetch_503RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("unexpected body: %q", body)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (1 initial + 2 retries), got %d", calls)
	}
}

func TestFetch_PermanentClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	_, err := c.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if calls != 1 {
		t.Errorf("expected a 404 to fail without retrying, got %d calls", calls)
	}
}

func TestFetch_DecompressesGzipExplicitly(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("gzip payload"))
	_ = gz.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "gzip payload" {
		t.Errorf("expected decompressed body, got %q", body)
	}
}

func TestFetch_DecompressesBrotliExplicitly(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte("brotli payload"))
	_ = bw.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	c := New(Options{RatePerSecond: 1000, Burst: 1000})
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "brotli payload" {
		t.Errorf("expected decompressed body, got %q", body)
	}
}

func TestIsBotGated(t *testing.T) {
	c := New(Options{BotGatedHosts: []string{"gated.test"}})
	if !c.IsBotGated("gated.test") {
		t.Error("expected gated.test to be reported as bot-gated")
	}
	if c.IsBotGated("open.test") {
		t.Error("expected open.test to not be reported as bot-gated")
	}
}
