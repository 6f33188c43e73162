package rss

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Engineering &amp; Ops</title>
    <item>
      <guid isPermaLink="false">post-1</guid>
      <title>Postgres &lt;b&gt;tuning&lt;/b&gt; notes</title>
      <link>https://example.com/posts/1</link>
      <dc:creator>Ada</dc:creator>
      <description>&lt;p&gt;Connection pools,   explained.&lt;/p&gt;</description>
      <pubDate>Mon, 02 Mar 2026 15:04:05 +0000</pubDate>
    </item>
    <item>
      <title>No guid, link identity</title>
      <link>https://example.com/posts/2</link>
      <pubDate>Tue, 3 Mar 2026 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No identity at all</title>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Release Notes</title>
  <entry>
    <id>urn:release:v1.2.0</id>
    <title>v1.2.0</title>
    <link rel="self" href="https://example.org/releases/v1.2.0.atom"/>
    <link rel="alternate" href="https://example.org/releases/v1.2.0"/>
    <author><name>release-bot</name></author>
    <content type="html">&lt;ul&gt;&lt;li&gt;Faster boots&lt;/li&gt;&lt;/ul&gt;</content>
    <updated>2026-03-02T10:30:00Z</updated>
  </entry>
</feed>`

func TestDecodeFeed_RSS(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	feed, err := DecodeFeed([]byte(sampleRSS), now)
	require.NoError(t, err)

	assert.Equal(t, "Engineering & Ops", feed.Title)
	require.Len(t, feed.Items, 2, "item without guid and link is dropped")

	first := feed.Items[0]
	assert.Equal(t, "post-1", first.GUID)
	assert.Equal(t, "Postgres tuning notes", first.Title)
	assert.Equal(t, "https://example.com/posts/1", first.Link)
	assert.Equal(t, "Ada", first.Author)
	assert.Equal(t, "Connection pools, explained.", first.Summary)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC), first.PublishedAt)

	second := feed.Items[1]
	assert.Equal(t, "https://example.com/posts/2", second.GUID, "guid falls back to link")
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), second.PublishedAt)
}

func TestDecodeFeed_Atom(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	feed, err := DecodeFeed([]byte(sampleAtom), now)
	require.NoError(t, err)

	assert.Equal(t, "Release Notes", feed.Title)
	require.Len(t, feed.Items, 1)

	entry := feed.Items[0]
	assert.Equal(t, "urn:release:v1.2.0", entry.GUID)
	assert.Equal(t, "https://example.org/releases/v1.2.0", entry.Link, "alternate link wins over self")
	assert.Equal(t, "release-bot", entry.Author)
	assert.Equal(t, "Faster boots", entry.Summary, "content backs an absent summary")
	assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), entry.PublishedAt, "updated backs an absent published")
}

func TestDecodeFeed_UnsupportedRoot(t *testing.T) {
	_, err := DecodeFeed([]byte(`<?xml version="1.0"?><opml version="2.0"></opml>`), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported feed root element")
}

func TestDecodeFeed_Garbage(t *testing.T) {
	_, err := DecodeFeed([]byte("{not xml}"), time.Now())
	require.Error(t, err)
}

func TestParseFeedTime(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc1123z", "Mon, 02 Mar 2026 15:04:05 +0100", time.Date(2026, 3, 2, 14, 4, 5, 0, time.UTC)},
		{"rfc1123", "Mon, 02 Mar 2026 15:04:05 UTC", time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)},
		{"single digit day", "Tue, 3 Mar 2026 08:00:00 +0000", time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)},
		{"no weekday", "3 Mar 2026 08:00:00 +0000", time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)},
		{"rfc3339", "2026-03-02T10:30:00+02:00", time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)},
		{"empty falls back", "", fallback},
		{"unparseable falls back", "yesterday-ish", fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFeedTime(tt.in, fallback))
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b", cleanText("  a\n\t b "))
	assert.Equal(t, "bold & plain", cleanText("<b>bold</b> &amp; plain"))
	assert.Equal(t, "", cleanText("<p></p>"))
}

func TestFeedHost(t *testing.T) {
	assert.Equal(t, "example.com", FeedHost("https://www.Example.com/feed.xml"))
	assert.Equal(t, "blog.example.org", FeedHost("http://blog.example.org:8080/rss"))
	assert.Equal(t, "127.0.0.1", FeedHost("http://127.0.0.1:9999/feed"))
	assert.Equal(t, "not a url", FeedHost("Not a URL"))
}

func TestItemIDDeterministic(t *testing.T) {
	a := itemID("example.com", "post-1")
	b := itemID("example.com", "post-1")
	c := itemID("example.com", "post-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
