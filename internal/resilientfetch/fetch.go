package resilientfetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker/v2"

	"blogwatch/internal/engineerr"
	"blogwatch/internal/logger"
)

var log = logger.Component("resilientfetch")

// defaultHeaders mimics a mainstream desktop browser per spec.md §4.C, the
// first line of defense against anti-bot heuristics that key off an
// empty or non-browser User-Agent.
func defaultHeaders(genericAccept bool) http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	if genericAccept {
		h.Set("Accept", "*/*")
	} else {
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	}
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Connection", "keep-alive")
	return h
}

// Fetch performs one resilient GET against rawURL, applying the full
// status-code policy of spec.md §4.C. It returns the (possibly
// explicitly-decompressed) response body bytes.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, engineerr.New(engineerr.KindParseFormat, "resilientfetch.Fetch", err)
	}
	host := u.Hostname()

	if err := c.limiterFor(host).Wait(ctx); err != nil {
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.Fetch", err)
	}

	breaker := c.breakerFor(host)
	body, err := breaker.Execute(func() ([]byte, error) {
		return c.fetchOnce(ctx, u, genericAcceptNever)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.Fetch",
			fmt.Errorf("circuit open for host %s: %w", host, err))
	}
	return body, err
}

type acceptMode bool

const (
	genericAcceptNever acceptMode = false
	genericAcceptAlways acceptMode = true
)

// fetchOnce runs the retry/backoff ladder for a single URL: a single
// generic-Accept retry on 406, exponential backoff on 429, up to 3
// attempts with backoff on 5xx (503 included, unless the host is
// bot-gated), and immediate classification of 403, of 503 from a
// bot-gated host, and of other 4xx for the caller to act on (bot-gated
// fallback or permanent failure).
func (c *Client) fetchOnce(ctx context.Context, u *url.URL, accept acceptMode) ([]byte, error) {
	client := c.clientFor(u.Hostname())

	do := func(genericAccept bool) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header = defaultHeaders(genericAccept)
		return client.Do(req)
	}

	resp, err := do(bool(accept))
	if err != nil {
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.fetchOnce", err)
	}

	// 406: retry once with a generic Accept header.
	if resp.StatusCode == http.StatusNotAcceptable && !bool(accept) {
		_ = resp.Body.Close()
		resp, err = do(true)
		if err != nil {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.fetchOnce", err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return readBody(resp)

	case resp.StatusCode == http.StatusTooManyRequests:
		_ = resp.Body.Close()
		return c.retry429(ctx, u, accept)

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable:
		_ = resp.Body.Close()
		if c.IsBotGated(u.Hostname()) {
			log.Warn().Str("host", u.Hostname()).Int("status", resp.StatusCode).Msg("bot challenge, falling through to secondary fetch path")
			return nil, engineerr.New(engineerr.KindBotChallenged, "resilientfetch.fetchOnce",
				fmt.Errorf("status %d from bot-gated host %s", resp.StatusCode, u.Hostname()))
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return c.retry5xx(ctx, u, accept, 1)
		}
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.fetchOnce",
			fmt.Errorf("status %d", resp.StatusCode))

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		_ = resp.Body.Close()
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.fetchOnce",
			fmt.Errorf("permanent failure: status %d", resp.StatusCode))

	case resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return c.retry5xx(ctx, u, accept, 1)

	default:
		_ = resp.Body.Close()
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.fetchOnce",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

// backoff bounds: initial 1s, factor 2, max 5 attempts, max total 30s.
const (
	backoffInitial = time.Second
	backoffFactor  = 2.0
	maxAttempts429 = 5
	maxTotal429    = 30 * time.Second
)

// retry429 implements spec.md §4.C's 429 policy: exponential backoff
// honoring Retry-After when present, bounded by both attempt count and
// total elapsed time.
func (c *Client) retry429(ctx context.Context, u *url.URL, accept acceptMode) ([]byte, error) {
	client := c.clientFor(u.Hostname())
	start := time.Now()
	wait := backoffInitial

	// Attempt 1 was fetchOnce's request, which drew the first 429.
	for attempt := 2; attempt <= maxAttempts429; attempt++ {
		if time.Since(start) >= maxTotal429 {
			break
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, engineerr.New(engineerr.KindRateLimited, "resilientfetch.retry429", err)
		}
		req.Header = defaultHeaders(bool(accept))
		resp, err := client.Do(req)
		if err != nil {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry429", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return readBody(resp)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			_ = resp.Body.Close()
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry429",
				fmt.Errorf("unexpected status %d during 429 retry", resp.StatusCode))
		}

		delay := wait
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				delay = time.Duration(secs) * time.Second
			}
		}
		_ = resp.Body.Close()

		remaining := maxTotal429 - time.Since(start)
		if delay > remaining {
			delay = remaining
		}
		if delay <= 0 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, engineerr.New(engineerr.KindRateLimited, "resilientfetch.retry429", ctx.Err())
		}

		wait = time.Duration(math.Min(float64(wait)*backoffFactor, float64(maxTotal429)))
	}

	return nil, engineerr.New(engineerr.KindRateLimited, "resilientfetch.retry429",
		fmt.Errorf("exceeded %d attempts / %s backing off 429s", maxAttempts429, maxTotal429))
}

// retry5xx implements the 5xx policy (503 included for hosts that are not
// bot-gated): up to 3 attempts with backoff. attempt is the 1-indexed
// number of the request that already failed on entry.
func (c *Client) retry5xx(ctx context.Context, u *url.URL, accept acceptMode, attempt int) ([]byte, error) {
	const maxAttempts5xx = 3
	client := c.clientFor(u.Hostname())
	wait := backoffInitial

	for attempt++; attempt <= maxAttempts5xx; attempt++ {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry5xx", ctx.Err())
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry5xx", err)
		}
		req.Header = defaultHeaders(bool(accept))
		resp, err := client.Do(req)
		if err != nil {
			wait *= backoffFactor
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return readBody(resp)
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 500 {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry5xx",
				fmt.Errorf("unexpected status %d during 5xx retry", resp.StatusCode))
		}
		wait *= backoffFactor
	}

	return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.retry5xx",
		fmt.Errorf("exceeded %d attempts retrying 5xx", maxAttempts5xx))
}

// readBody reads the response body, explicitly decompressing it when the
// Content-Encoding header indicates the net/http client did not already
// auto-decode it (net/http only auto-decodes gzip, and only when the
// caller didn't set its own Accept-Encoding — which this client always
// does, so every encoding here is explicit per spec.md §4.C).
func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.readBody", err)
	}

	switch resp.Header.Get("Content-Encoding") {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.readBody", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, engineerr.New(engineerr.KindNetwork, "resilientfetch.readBody", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	default:
		return raw, nil
	}
}
