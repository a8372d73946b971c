package adapters

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"blogwatch/internal/core"
)

// rssFeed and atomFeed mirror the teacher's internal/feeds RSS/Atom
// structs, extended with the author-field aliases spec.md §4.C.1 asks
// GenericAdapter to tolerate (author, creator, dc:creator, and Atom's
// nested <author><name>).
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Link  string    `xml:"link"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title      string   `xml:"title"`
	Link       string   `xml:"link"`
	Description string  `xml:"description"`
	PubDate    string   `xml:"pubDate"`
	GUID       string   `xml:"guid"`
	Author     string   `xml:"author"`
	Creator    string   `xml:"creator"`
	DcCreator  string   `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Categories []string `xml:"category"`
}

func (i rssItem) author() string {
	for _, candidate := range []string{i.DcCreator, i.Creator, i.Author} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string         `xml:"title"`
	Link      []atomLink     `xml:"link"`
	Summary   string         `xml:"summary"`
	Content   string         `xml:"content"`
	Published string         `xml:"published"`
	Updated   string         `xml:"updated"`
	ID        string         `xml:"id"`
	Author    atomAuthor     `xml:"author"`
	Category  []atomCategory `xml:"category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// jsonFeed is the minimal JSON Feed (https://www.jsonfeed.org/) shape
// GenericAdapter's strict-parse tier recognizes.
type jsonFeed struct {
	Version string         `json:"version"`
	Title   string         `json:"title"`
	Items   []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	DatePublished string   `json:"date_published"`
	Tags          []string `json:"tags"`
	Author        *struct {
		Name string `json:"name"`
	} `json:"author"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

func (i jsonFeedItem) author() string {
	if i.Author != nil && i.Author.Name != "" {
		return i.Author.Name
	}
	if len(i.Authors) > 0 {
		return i.Authors[0].Name
	}
	return ""
}

// parseStrictFeed tries RSS, then Atom, then JSON Feed, in that order.
// When none of them yields items it returns an error, which signals the
// caller to fall through to HTML-as-feed extraction per spec.md §4.C.1.
func parseStrictFeed(raw []byte, sourceName string) ([]core.CandidatePost, error) {
	if posts, err := parseRSS(raw, sourceName); err == nil && len(posts) > 0 {
		return posts, nil
	}
	if posts, err := parseAtom(raw, sourceName); err == nil && len(posts) > 0 {
		return posts, nil
	}
	if posts, err := parseJSONFeed(raw, sourceName); err == nil && len(posts) > 0 {
		return posts, nil
	}
	return nil, fmt.Errorf("adapters: no items recognized as RSS, Atom, or JSON Feed")
}

func parseRSS(raw []byte, sourceName string) ([]core.CandidatePost, error) {
	var feed rssFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, err
	}
	if feed.Channel.Title == "" && len(feed.Channel.Items) == 0 {
		return nil, fmt.Errorf("adapters: not an RSS document")
	}

	posts := make([]core.CandidatePost, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		posts = append(posts, core.CandidatePost{
			SourceName:  sourceName,
			URL:         item.Link,
			Title:       strings.TrimSpace(item.Title),
			Author:      item.author(),
			Summary:     item.Description,
			Tags:        item.Categories,
			PublishedAt: parseRSSDate(item.PubDate),
		})
	}
	return posts, nil
}

func parseAtom(raw []byte, sourceName string) ([]core.CandidatePost, error) {
	var feed atomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, err
	}
	if feed.Title == "" && len(feed.Entries) == 0 {
		return nil, fmt.Errorf("adapters: not an Atom document")
	}

	posts := make([]core.CandidatePost, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		link := atomAlternateLink(entry.Link)
		if link == "" || entry.Title == "" {
			continue
		}
		tags := make([]string, 0, len(entry.Category))
		for _, c := range entry.Category {
			if c.Term != "" {
				tags = append(tags, c.Term)
			}
		}
		posts = append(posts, core.CandidatePost{
			SourceName:  sourceName,
			URL:         link,
			Title:       strings.TrimSpace(entry.Title),
			Author:      entry.Author.Name,
			Summary:     entry.Summary,
			Tags:        tags,
			PublishedAt: parseAtomDate(firstNonEmpty(entry.Published, entry.Updated)),
		})
	}
	return posts, nil
}

func parseJSONFeed(raw []byte, sourceName string) ([]core.CandidatePost, error) {
	var feed jsonFeed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, err
	}
	if feed.Version == "" || len(feed.Items) == 0 {
		return nil, fmt.Errorf("adapters: not a JSON Feed document")
	}

	posts := make([]core.CandidatePost, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.URL == "" || item.Title == "" {
			continue
		}
		posts = append(posts, core.CandidatePost{
			SourceName:  sourceName,
			URL:         item.URL,
			Title:       strings.TrimSpace(item.Title),
			Author:      item.author(),
			Summary:     item.Summary,
			Tags:        item.Tags,
			PublishedAt: parseRSSDate(item.DatePublished),
		})
	}
	return posts, nil
}

func atomAlternateLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseRSSDate and parseAtomDate follow the teacher's internal/feeds
// multi-format date parsing, tolerating RFC1123 and RFC3339 variants.
func parseRSSDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC1123Z, time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseAtomDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return parseRSSDate(s)
}
