package rss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Feed is the decoded, format-neutral view of one fetched document.
type Feed struct {
	Title string
	Items []Item
}

// Item is one normalized feed entry. Text fields are flattened to
// plain text; PublishedAt falls back to the sweep time when the feed
// carries no usable date.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Author      string
	Summary     string
	PublishedAt time.Time
}

// DecodeFeed sniffs the document's root element and decodes the RSS 2.0
// or Atom subset the fleet understands. Items without a guid fall back
// to their link as identity; entries with neither are dropped.
func DecodeFeed(data []byte, now time.Time) (*Feed, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}
	switch root {
	case "rss":
		return decodeRSS(data, now)
	case "feed":
		return decodeAtom(data, now)
	default:
		return nil, fmt.Errorf("unsupported feed root element <%s>", root)
	}
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("failed to parse feed document: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

type rssDoc struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Author      string `xml:"author"`
	Creator     string `xml:"creator"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func decodeRSS(data []byte, now time.Time) (*Feed, error) {
	var doc rssDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rss document: %w", err)
	}

	feed := &Feed{Title: cleanText(doc.Channel.Title)}
	for _, it := range doc.Channel.Items {
		guid := strings.TrimSpace(it.GUID)
		if guid == "" {
			guid = strings.TrimSpace(it.Link)
		}
		if guid == "" {
			continue
		}
		author := cleanText(it.Author)
		if author == "" {
			author = cleanText(it.Creator)
		}
		feed.Items = append(feed.Items, Item{
			GUID:        guid,
			Title:       cleanText(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Author:      author,
			Summary:     cleanText(it.Description),
			PublishedAt: parseFeedTime(it.PubDate, now),
		})
	}
	return feed, nil
}

type atomDoc struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID     string     `xml:"id"`
	Title  string     `xml:"title"`
	Links  []atomLink `xml:"link"`
	Author struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Summary   string `xml:"summary"`
	Content   string `xml:"content"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func decodeAtom(data []byte, now time.Time) (*Feed, error) {
	var doc atomDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode atom document: %w", err)
	}

	feed := &Feed{Title: cleanText(doc.Title)}
	for _, e := range doc.Entries {
		link := pickAtomLink(e.Links)
		guid := strings.TrimSpace(e.ID)
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}
		summary := cleanText(e.Summary)
		if summary == "" {
			summary = cleanText(e.Content)
		}
		published := e.Published
		if strings.TrimSpace(published) == "" {
			published = e.Updated
		}
		feed.Items = append(feed.Items, Item{
			GUID:        guid,
			Title:       cleanText(e.Title),
			Link:        link,
			Author:      cleanText(e.Author.Name),
			Summary:     summary,
			PublishedAt: parseFeedTime(published, now),
		})
	}
	return feed, nil
}

// pickAtomLink prefers the alternate link, then any link with an href.
func pickAtomLink(links []atomLink) string {
	for _, l := range links {
		if (l.Rel == "" || l.Rel == "alternate") && l.Href != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

// feedTimeLayouts covers the date formats feeds use in the wild: the
// RFC 822 family with and without numeric zones and single-digit days,
// plus RFC 3339 for Atom.
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
}

func parseFeedTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback.UTC()
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cleanText flattens feed markup to plain text: tags removed, entities
// decoded, whitespace collapsed.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// FeedHost derives the context key for a feed URL: the hostname,
// lowercased, with any www prefix dropped.
func FeedHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
