// Package adapters implements the polymorphic source-fetch-and-parse
// layer of spec.md §4.C: a tagged variant of four adapter kinds selected
// by a factory from SourceConfig, each exposing Discover(ctx) -> posts.
// Per the spec's design note ("Dynamic adapter selection by duck typing"
// → tagged variant + factory, no runtime reflection), Select returns a
// concrete Adapter value; there is no adapter registry or interface
// satisfaction probing.
package adapters

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"blogwatch/internal/capability"
	"blogwatch/internal/core"
	"blogwatch/internal/engineerr"
	"blogwatch/internal/logger"
	"blogwatch/internal/resilientfetch"
)

// Adapter is the capability set every source variant implements: fetch
// is folded into Discover since no caller needs the raw bytes on their
// own (spec.md §4.C: "discover is the default composition
// parse(fetch(...))").
type Adapter interface {
	Name() string
	Discover(ctx context.Context, cfg core.SourceConfig) ([]core.CandidatePost, error)
}

// Deps bundles the shared collaborators every adapter composes over:
// the resilient-fetch client (shared across all adapters and sources)
// and the optional browser-render capability. Passed explicitly per the
// spec's "Global singletons for config/pool" design note — no package
// state.
type Deps struct {
	Fetcher  *resilientfetch.Client
	Renderer capability.Renderer // nil means no browser capability is configured
}

// spaHostPattern matches hosts spec.md §4.C rule 1 calls out: Next.js
// -hosted engineering sites. There is no general way to detect a Next.js
// deployment from the hostname alone, so selection here is driven
// primarily by SourceConfig.Hints.DomainFamily; this pattern only covers
// the one widely-recognized family hint as a fallback when hints are
// absent.
var spaHostPattern = regexp.MustCompile(`(?i)\.vercel\.app$`)

// mediumHosts are the known Medium-family hosts spec.md §4.C rule 3
// names; DomainFamily == "medium" covers custom domains fronted by
// Medium's publishing platform.
var mediumHosts = regexp.MustCompile(`(?i)(^|\.)medium\.com$`)

// Select implements the ordered adapter-selection rules of spec.md §4.C:
// SPA family first, then bot-gated hosts, then Medium family, else
// Generic.
func Select(cfg core.SourceConfig, deps Deps) Adapter {
	host := hostOf(cfg.URL)

	switch {
	case cfg.Hints.DomainFamily == "nextjs-spa" || spaHostPattern.MatchString(host):
		return &SPAAdapter{deps: deps}

	case deps.Fetcher != nil && deps.Fetcher.IsBotGated(host):
		return &BrowserFallbackAdapter{deps: deps}

	case cfg.Hints.DomainFamily == "medium" || mediumHosts.MatchString(host):
		return &MediumAdapter{deps: deps}

	default:
		return &GenericAdapter{deps: deps}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// boundAndOrder truncates posts to cfg.MaxPostsPerTick, keeping the most
// recent by PublishedAt (spec.md §4.F step 3, §8 boundary: "truncated to
// the most recent N"). Posts without a PublishedAt sort last, preserving
// the adapter's original relative order among themselves (spec.md §4.F:
// "the adapter's ordering when missing").
func boundAndOrder(posts []core.CandidatePost, max int) []core.CandidatePost {
	withDate := make([]core.CandidatePost, 0, len(posts))
	withoutDate := make([]core.CandidatePost, 0, len(posts))
	for _, p := range posts {
		if p.PublishedAt.IsZero() {
			withoutDate = append(withoutDate, p)
		} else {
			withDate = append(withDate, p)
		}
	}
	sortByPublishedDesc(withDate)

	ordered := append(withDate, withoutDate...)
	if max > 0 && len(ordered) > max {
		ordered = ordered[:max]
	}
	return ordered
}

// sortByPublishedDesc is a small insertion sort, descending by
// PublishedAt; per-tick candidate counts are small enough that this is
// clearer than pulling in sort.Slice for a single comparator.
func sortByPublishedDesc(posts []core.CandidatePost) {
	for i := 1; i < len(posts); i++ {
		j := i
		for j > 0 && posts[j].PublishedAt.After(posts[j-1].PublishedAt) {
			posts[j-1], posts[j] = posts[j], posts[j-1]
			j--
		}
	}
}

// finalizeFingerprints derives and fills in Fingerprint for every post,
// the one field adapters never set themselves (core.Fingerprint owns
// derivation per spec.md §3).
func finalizeFingerprints(posts []core.CandidatePost) {
	for i := range posts {
		posts[i].Fingerprint = core.Fingerprint(posts[i].SourceName, posts[i].URL)
	}
}

var log = logger.Component("adapters")

// wrapFetchErr normalizes a resilientfetch error for logging context
// without changing its Kind, so Discover callers can still errors.As it.
func wrapFetchErr(op string, err error) error {
	if err == nil {
		return nil
	}
	log.Warn().Str("op", op).Err(err).Msg("fetch failed")
	return err
}

// ErrBrowserRequired is returned by adapters whose Fetch step needs the
// browser capability when none was configured, per spec.md §4.C.2/.3.
var ErrBrowserRequired = engineerr.New(engineerr.KindBrowserRequired, "adapters", fmt.Errorf("browser rendering capability is required but not configured"))
