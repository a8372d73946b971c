package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"blogwatch/internal/logger"
)

// ChromeDPRenderer implements Renderer over a pool of headless Chrome
// tabs, following the teacher pack's browser_chromedp.go allocator setup.
// Unlike that tool-call-oriented backend, RenderPage is a single
// borrow-navigate-capture-return cycle: the engine never needs persistent
// tabs across calls.
type ChromeDPRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sem         chan struct{} // bounds concurrent live tabs to MAX_CONCURRENT_BROWSERS
	timeout     time.Duration
}

// ChromeDPConfig configures the renderer.
type ChromeDPConfig struct {
	Headless          bool
	Timeout           time.Duration // per-render timeout, spec.md §5 default 45s
	MaxConcurrentTabs int           // spec.md §4.F BROWSER__MAX_CONCURRENT_BROWSERS
}

// NewChromeDPRenderer launches a local Chrome allocator. The allocator
// itself is shared; each RenderPage call creates and tears down its own
// tab context so failures in one render never wedge another.
func NewChromeDPRenderer(cfg ChromeDPConfig) (*ChromeDPRenderer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxConcurrentTabs <= 0 {
		cfg.MaxConcurrentTabs = 3
	}

	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 720),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeDPRenderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sem:         make(chan struct{}, cfg.MaxConcurrentTabs),
		timeout:     cfg.Timeout,
	}, nil
}

// RenderPage borrows a tab slot, navigates, and returns the rendered HTML.
// Borrow/return discipline matches spec.md §5: automatic close on borrow
// timeout (the context deadline) and on normal completion alike.
func (r *ChromeDPRenderer) RenderPage(ctx context.Context, url string) (string, int, map[string]string, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", 0, nil, fmt.Errorf("capability: render page %s: %w", url, ctx.Err())
	}
	defer func() { <-r.sem }()

	tabCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()

	renderCtx, renderCancel := context.WithTimeout(tabCtx, r.timeout)
	defer renderCancel()

	// Listening for the main-frame network.EventResponseReceived is how
	// chromedp surfaces the navigation's real status code and response
	// headers; OuterHTML alone only gives back the rendered DOM. Recording
	// the first response keeps 403/503 bot-challenge detection working
	// even when the fetch came from a browser instead of resilientfetch.
	var mu sync.Mutex
	status := 0
	headers := map[string]string{}
	chromedp.ListenTarget(renderCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if status != 0 {
			return
		}
		status = int(resp.Response.Status)
		for k, v := range resp.Response.Headers {
			headers[strings.ToLower(k)] = fmt.Sprint(v)
		}
	})

	var html string
	err := chromedp.Run(renderCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		logger.Component("capability.chromedp").Warn().Str("url", url).Err(err).Msg("render failed")
		return "", 0, nil, fmt.Errorf("capability: render page %s: %w", url, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if status == 0 {
		// Navigation succeeded but no document response event fired (rare,
		// e.g. a same-document navigation); report success since WaitReady
		// would otherwise have failed.
		status = 200
	}
	return html, status, headers, nil
}

// Close releases the browser allocator.
func (r *ChromeDPRenderer) Close() error {
	r.allocCancel()
	return nil
}
